package model

import "time"

// BatchStatus — статус жизненного цикла пакета документов.
type BatchStatus string

// Статусы пакета. Переходы инициирует внешний конвейер обработки,
// ядро проверяет только принадлежность значения enum.
const (
	// BatchStatusPending — есть необработанные документы.
	BatchStatusPending BatchStatus = "PENDING"
	// BatchStatusProcessing — конвейер обрабатывает документы пакета.
	BatchStatusProcessing BatchStatus = "PROCESSING"
	// BatchStatusCompleted — все документы обработаны успешно.
	BatchStatusCompleted BatchStatus = "COMPLETED"
	// BatchStatusFailed — обработка всех документов завершилась ошибкой.
	BatchStatusFailed BatchStatus = "FAILED"
	// BatchStatusPartialFailure — часть документов обработана, часть — нет.
	BatchStatusPartialFailure BatchStatus = "PARTIAL_FAILURE"
)

// Valid проверяет, что статус является допустимым значением enum.
func (s BatchStatus) Valid() bool {
	switch s {
	case BatchStatusPending, BatchStatusProcessing, BatchStatusCompleted,
		BatchStatusFailed, BatchStatusPartialFailure:
		return true
	}
	return false
}

// Batch — пакет документов, принадлежащий одному пользователю.
// Хранится в таблице batches.
//
// Инвариант: TotalFileCount всегда равен количеству живых документов пакета,
// TotalFileSize — сумме их размеров. Оба счётчика изменяются только
// в одной транзакции с соответствующими строками documents.
type Batch struct {
	// ID — UUID пакета
	ID string
	// OwnerID — идентификатор владельца (sub из JWT)
	OwnerID string
	// Name — имя пакета
	Name string
	// Status — статус жизненного цикла
	Status BatchStatus
	// TotalFileCount — количество документов пакета
	TotalFileCount int
	// TotalFileSize — суммарный размер документов в байтах
	TotalFileSize int64
	// Accuracy — средняя точность распознавания по COMPLETED документам [0,1]
	Accuracy *float64
	// Precision — средняя precision по COMPLETED документам [0,1]
	Precision *float64
	// Loss — средний loss по COMPLETED документам
	Loss *float64
	// ExtractedContent — агрегированный распознанный текст пакета
	ExtractedContent *string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}
