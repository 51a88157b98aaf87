// Пакет model — доменные модели DocFlow: пакеты и документы.
package model

import "time"

// DocumentStatus — статус обработки документа.
type DocumentStatus string

// Статусы документа: UPLOADED → PENDING → PROCESSING → {COMPLETED | FAILED}.
// Ядро проверяет только принадлежность целевого значения enum,
// легальность самого перехода не контролируется (переходы инициирует
// внешний OCR-конвейер, которому нужны повторы и перезапуски).
const (
	// DocumentStatusUploaded — файл загружен, обработка не начата.
	DocumentStatusUploaded DocumentStatus = "UPLOADED"
	// DocumentStatusPending — документ поставлен в очередь обработки.
	DocumentStatusPending DocumentStatus = "PENDING"
	// DocumentStatusProcessing — документ обрабатывается конвейером.
	DocumentStatusProcessing DocumentStatus = "PROCESSING"
	// DocumentStatusCompleted — обработка завершена успешно.
	DocumentStatusCompleted DocumentStatus = "COMPLETED"
	// DocumentStatusFailed — обработка завершилась ошибкой.
	DocumentStatusFailed DocumentStatus = "FAILED"
)

// Valid проверяет, что статус является допустимым значением enum.
func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentStatusUploaded, DocumentStatusPending, DocumentStatusProcessing,
		DocumentStatusCompleted, DocumentStatusFailed:
		return true
	}
	return false
}

// Document — загруженный файл и результаты его обработки.
// Принадлежит ровно одному пакету на всё время жизни.
// Хранится в таблице documents (ON DELETE CASCADE от batches).
type Document struct {
	// ID — UUID документа
	ID string
	// BatchID — UUID родительского пакета
	BatchID string
	// FileName — оригинальное имя файла
	FileName string
	// FileSize — размер файла в байтах
	FileSize int64
	// MimeType — MIME-тип файла
	MimeType string
	// StorageKey — относительный путь файла внутри корня хранилища,
	// всегда с forward slash: documents/{batchID}/{generatedName}
	StorageKey string
	// Status — статус обработки
	Status DocumentStatus
	// ExtractedContent — распознанный текст (результат OCR)
	ExtractedContent *string
	// Accuracy — точность распознавания [0,1]
	Accuracy *float64
	// Precision — precision распознавания [0,1]
	Precision *float64
	// Loss — значение loss модели
	Loss *float64
	// EnhancedText — улучшенный текст (результат enhancement)
	EnhancedText *string
	// TranslatedText — переведённый текст
	TranslatedText *string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// MetricInRange проверяет, что значение метрики лежит в [0,1].
// nil трактуется как «значение не задано» и считается допустимым.
func MetricInRange(v *float64) bool {
	if v == nil {
		return true
	}
	return *v >= 0 && *v <= 1
}

// HasValidMetrics сообщает, участвует ли документ в агрегации метрик пакета:
// статус COMPLETED, accuracy и precision заданы и лежат в [0,1].
func (d *Document) HasValidMetrics() bool {
	if d.Status != DocumentStatusCompleted {
		return false
	}
	if d.Accuracy == nil || d.Precision == nil {
		return false
	}
	return MetricInRange(d.Accuracy) && MetricInRange(d.Precision)
}
