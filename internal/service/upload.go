// upload.go — сервис мутаций документов.
//
// Единственный компонент, которому разрешено менять счётчики пакета
// (total_file_count, total_file_size). Каждая мутация счётчиков выполняется
// в одной транзакции с изменением строк documents — частичное применение
// исключается границей транзакции, а не компенсациями.
//
// Порядок файловых операций:
//   - загрузка: файлы пишутся на диск ДО транзакции; при ошибке транзакции
//     выполняется best-effort удаление осиротевших файлов;
//   - удаление: файл стирается ПОСЛЕ коммита — неудавшаяся транзакция
//     никогда не теряет файл.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/godocflow/internal/domain/model"
	"github.com/bigkaa/godocflow/internal/repository"
	"github.com/bigkaa/godocflow/internal/storage/filestore"
)

// Prometheus-метрики загрузки.
var (
	documentsUploadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "df_documents_uploaded_total",
		Help: "Общее количество загруженных документов.",
	})
	uploadedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "df_uploaded_bytes_total",
		Help: "Суммарный размер загруженных документов в байтах.",
	})
	documentsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "df_documents_deleted_total",
		Help: "Общее количество удалённых документов.",
	})
)

// TxRunner выполняет функцию в одной транзакции БД.
// Реализуется repository.TxRunner.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// Upload — один файл из multipart-запроса.
type Upload struct {
	// Reader — поток данных файла
	Reader io.Reader
	// FileName — оригинальное имя файла
	FileName string
	// MimeType — MIME-тип из multipart part
	MimeType string
}

// ResultUpdate — частичное обновление результатов обработки документа.
// nil-поля не изменяются. Операция идемпотентна: повторный вызов
// с тем же payload даёт то же состояние.
type ResultUpdate struct {
	ExtractedContent *string
	Accuracy         *float64
	Precision        *float64
	Loss             *float64
	EnhancedText     *string
	TranslatedText   *string
	Status           *model.DocumentStatus
}

// UploadService — сервис транзакционных мутаций документов и счётчиков пакета.
type UploadService struct {
	txRunner  TxRunner
	batchRepo repository.BatchRepository
	docRepo   repository.DocumentRepository
	store     *filestore.FileStore
	cleanup   *CleanupCoordinator
	logger    *slog.Logger
}

// NewUploadService создаёт сервис мутаций документов.
func NewUploadService(
	txRunner TxRunner,
	batchRepo repository.BatchRepository,
	docRepo repository.DocumentRepository,
	store *filestore.FileStore,
	cleanup *CleanupCoordinator,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		txRunner:  txRunner,
		batchRepo: batchRepo,
		docRepo:   docRepo,
		store:     store,
		cleanup:   cleanup,
		logger:    logger.With(slog.String("component", "upload_service")),
	}
}

// AddDocuments загружает файлы в пакет.
//
// Последовательность:
//  1. Проверка владения (до любых побочных эффектов).
//  2. Запись файлов на диск (documents/{batchID}/, сгенерированные имена).
//  3. Одна транзакция: вставка строк documents + увеличение счётчиков
//     пакета + перевод статуса в PENDING (появилась необработанная работа).
//  4. При ошибке транзакции — best-effort удаление записанных файлов.
//
// Возвращает обновлённый пакет и созданные документы.
func (s *UploadService) AddDocuments(ctx context.Context, batchID, requesterID string, uploads []Upload) (*model.Batch, []*model.Document, error) {
	if _, err := authorizeBatch(ctx, s.batchRepo, batchID, requesterID); err != nil {
		return nil, nil, err
	}
	if len(uploads) == 0 {
		return nil, nil, fmt.Errorf("%w: не передано ни одного файла", ErrValidation)
	}

	// Пишем файлы на диск до транзакции
	docs := make([]*model.Document, 0, len(uploads))
	var totalSize int64
	for _, u := range uploads {
		saved, err := s.store.SaveDocument(u.Reader, batchID, u.FileName)
		if err != nil {
			// Уже записанные файлы этого запроса осиротели — убираем
			s.cleanup.DeleteAll(storageKeys(docs))
			return nil, nil, fmt.Errorf("%w: запись файла %s: %v", ErrStorage, u.FileName, err)
		}

		docs = append(docs, &model.Document{
			ID:         uuid.New().String(),
			BatchID:    batchID,
			FileName:   u.FileName,
			FileSize:   saved.Size,
			MimeType:   u.MimeType,
			StorageKey: saved.StorageKey,
			Status:     model.DocumentStatusUploaded,
		})
		totalSize += saved.Size
	}

	// Одна транзакция: строки documents + счётчики пакета + статус PENDING
	var updated *model.Batch
	pending := model.BatchStatusPending
	err := s.txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := repository.NewDocumentRepository(tx).InsertMany(ctx, docs); err != nil {
			return err
		}
		var txErr error
		updated, txErr = repository.NewBatchRepository(tx).AdjustCounters(
			ctx, batchID, len(docs), totalSize, &pending)
		return txErr
	})
	if err != nil {
		// Транзакция откатилась целиком — файлы на диске осиротели
		s.cleanup.DeleteAll(storageKeys(docs))
		return nil, nil, fmt.Errorf("транзакция загрузки документов: %w", err)
	}

	documentsUploadedTotal.Add(float64(len(docs)))
	uploadedBytesTotal.Add(float64(totalSize))

	s.logger.Info("Документы загружены",
		slog.String("batch_id", batchID),
		slog.Int("count", len(docs)),
		slog.Int64("total_size", totalSize),
	)

	return updated, docs, nil
}

// RemoveDocument удаляет документ пакета.
//
// Строка documents и счётчики пакета изменяются в одной транзакции;
// физический файл стирается только после успешного коммита (best-effort).
// Возвращает обновлённый пакет.
func (s *UploadService) RemoveDocument(ctx context.Context, batchID, docID, requesterID string) (*model.Batch, error) {
	if _, err := authorizeBatch(ctx, s.batchRepo, batchID, requesterID); err != nil {
		return nil, err
	}

	doc, err := s.getBatchDocument(ctx, batchID, docID)
	if err != nil {
		return nil, err
	}

	var updated *model.Batch
	err = s.txRunner.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := repository.NewDocumentRepository(tx).Delete(ctx, doc.ID); err != nil {
			return err
		}
		var txErr error
		updated, txErr = repository.NewBatchRepository(tx).AdjustCounters(
			ctx, batchID, -1, -doc.FileSize, nil)
		return txErr
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: документ %s", ErrNotFound, docID)
		}
		return nil, fmt.Errorf("транзакция удаления документа: %w", err)
	}

	// Коммит прошёл — файл можно стирать
	s.cleanup.DeleteStored(doc.StorageKey)
	documentsDeletedTotal.Inc()

	s.logger.Info("Документ удалён",
		slog.String("batch_id", batchID),
		slog.String("document_id", docID),
		slog.Int64("file_size", doc.FileSize),
	)

	return updated, nil
}

// UpdateDocumentResult записывает результаты внешнего OCR/enhancement/translation
// конвейера. Счётчики пакета не меняются (агрегаты пересчитывает AggregateService).
//
// Целевой статус проверяется только на принадлежность enum; легальность
// перехода не контролируется — конвейеру нужны повторы и перезапуски.
func (s *UploadService) UpdateDocumentResult(ctx context.Context, batchID, docID, requesterID string, upd ResultUpdate) (*model.Document, error) {
	if _, err := authorizeBatch(ctx, s.batchRepo, batchID, requesterID); err != nil {
		return nil, err
	}

	if upd.Status != nil && !upd.Status.Valid() {
		return nil, fmt.Errorf("%w: недопустимый статус документа %q", ErrValidation, *upd.Status)
	}
	if !model.MetricInRange(upd.Accuracy) {
		return nil, fmt.Errorf("%w: accuracy должна лежать в [0,1]", ErrValidation)
	}
	if !model.MetricInRange(upd.Precision) {
		return nil, fmt.Errorf("%w: precision должна лежать в [0,1]", ErrValidation)
	}

	doc, err := s.getBatchDocument(ctx, batchID, docID)
	if err != nil {
		return nil, err
	}

	if upd.ExtractedContent != nil {
		doc.ExtractedContent = upd.ExtractedContent
	}
	if upd.Accuracy != nil {
		doc.Accuracy = upd.Accuracy
	}
	if upd.Precision != nil {
		doc.Precision = upd.Precision
	}
	if upd.Loss != nil {
		doc.Loss = upd.Loss
	}
	if upd.EnhancedText != nil {
		doc.EnhancedText = upd.EnhancedText
	}
	if upd.TranslatedText != nil {
		doc.TranslatedText = upd.TranslatedText
	}
	if upd.Status != nil {
		doc.Status = *upd.Status
	}

	if err := s.docRepo.UpdateResult(ctx, doc); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: документ %s", ErrNotFound, docID)
		}
		return nil, fmt.Errorf("запись результатов обработки: %w", err)
	}

	s.logger.Info("Результаты обработки записаны",
		slog.String("batch_id", batchID),
		slog.String("document_id", docID),
		slog.String("status", string(doc.Status)),
	)

	return doc, nil
}

// GetDocument возвращает документ пакета после проверки владения.
// Используется handlers preview/download.
func (s *UploadService) GetDocument(ctx context.Context, batchID, docID, requesterID string) (*model.Document, error) {
	if _, err := authorizeBatch(ctx, s.batchRepo, batchID, requesterID); err != nil {
		return nil, err
	}
	return s.getBatchDocument(ctx, batchID, docID)
}

// getBatchDocument загружает документ и сверяет его принадлежность пакету.
// Несовпадение batch_id с пакетом из URL — ErrConflict.
func (s *UploadService) getBatchDocument(ctx context.Context, batchID, docID string) (*model.Document, error) {
	doc, err := s.docRepo.GetByID(ctx, docID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: документ %s", ErrNotFound, docID)
		}
		return nil, fmt.Errorf("получение документа: %w", err)
	}
	if doc.BatchID != batchID {
		return nil, fmt.Errorf("%w: документ %s не принадлежит пакету %s", ErrConflict, docID, batchID)
	}
	return doc, nil
}

// storageKeys собирает storage key документов.
func storageKeys(docs []*model.Document) []string {
	keys := make([]string, 0, len(docs))
	for _, d := range docs {
		keys = append(keys, d.StorageKey)
	}
	return keys
}
