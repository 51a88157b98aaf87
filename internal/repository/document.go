package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/godocflow/internal/domain/model"
)

// DocumentRepository — интерфейс CRUD для таблицы documents.
type DocumentRepository interface {
	// InsertMany вставляет документы одним batch-запросом.
	InsertMany(ctx context.Context, docs []*model.Document) error
	// GetByID возвращает документ по UUID.
	GetByID(ctx context.Context, docID string) (*model.Document, error)
	// ListByBatch возвращает документы пакета в порядке загрузки.
	ListByBatch(ctx context.Context, batchID string) ([]*model.Document, error)
	// ListCompletedWithMetrics возвращает COMPLETED документы пакета
	// с заданными accuracy и precision в [0,1] — выборка агрегатора.
	ListCompletedWithMetrics(ctx context.Context, batchID string) ([]*model.Document, error)
	// ListStorageKeys возвращает storage key всех документов пакета.
	// Вызывается ДО каскадного удаления — после него ключи уже не восстановить.
	ListStorageKeys(ctx context.Context, batchID string) ([]string, error)
	// UpdateResult записывает результаты обработки документа.
	UpdateResult(ctx context.Context, d *model.Document) error
	// Delete удаляет документ.
	Delete(ctx context.Context, docID string) error
}

// documentRepo — реализация DocumentRepository.
type documentRepo struct {
	db DBTX
}

// NewDocumentRepository создаёт репозиторий документов.
func NewDocumentRepository(db DBTX) DocumentRepository {
	return &documentRepo{db: db}
}

// documentColumns — список колонок documents в порядке сканирования scanDocument.
const documentColumns = `id, batch_id, file_name, file_size, mime_type, storage_key,
		status, extracted_content, accuracy, precision, loss,
		enhanced_text, translated_text, created_at, updated_at`

// scanDocument сканирует строку documents в model.Document.
func scanDocument(row pgx.Row) (*model.Document, error) {
	d := &model.Document{}
	err := row.Scan(
		&d.ID, &d.BatchID, &d.FileName, &d.FileSize, &d.MimeType, &d.StorageKey,
		&d.Status, &d.ExtractedContent, &d.Accuracy, &d.Precision, &d.Loss,
		&d.EnhancedText, &d.TranslatedText, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func (r *documentRepo) InsertMany(ctx context.Context, docs []*model.Document) error {
	if len(docs) == 0 {
		return nil
	}

	query := `
		INSERT INTO documents (id, batch_id, file_name, file_size, mime_type, storage_key, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	for _, d := range docs {
		err := r.db.QueryRow(ctx, query,
			d.ID, d.BatchID, d.FileName, d.FileSize, d.MimeType, d.StorageKey, d.Status,
		).Scan(&d.CreatedAt, &d.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: документ с таким ID уже существует", ErrConflict)
			}
			return fmt.Errorf("ошибка вставки документа %s: %w", d.FileName, err)
		}
	}
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, docID string) (*model.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE id = $1`, documentColumns)

	d, err := scanDocument(r.db.QueryRow(ctx, query, docID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения документа: %w", err)
	}
	return d, nil
}

// listQuery выполняет запрос списка документов и сканирует результат.
func (r *documentRepo) listQuery(ctx context.Context, query string, args ...any) ([]*model.Document, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка документов: %w", err)
	}
	defer rows.Close()

	var result []*model.Document
	for rows.Next() {
		d := &model.Document{}
		if err := rows.Scan(
			&d.ID, &d.BatchID, &d.FileName, &d.FileSize, &d.MimeType, &d.StorageKey,
			&d.Status, &d.ExtractedContent, &d.Accuracy, &d.Precision, &d.Loss,
			&d.EnhancedText, &d.TranslatedText, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования документа: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *documentRepo) ListByBatch(ctx context.Context, batchID string) ([]*model.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM documents
		WHERE batch_id = $1
		ORDER BY created_at, id`, documentColumns)

	return r.listQuery(ctx, query, batchID)
}

func (r *documentRepo) ListCompletedWithMetrics(ctx context.Context, batchID string) ([]*model.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM documents
		WHERE batch_id = $1
			AND status = 'COMPLETED'
			AND accuracy IS NOT NULL AND accuracy BETWEEN 0 AND 1
			AND precision IS NOT NULL AND precision BETWEEN 0 AND 1
		ORDER BY created_at, id`, documentColumns)

	return r.listQuery(ctx, query, batchID)
}

func (r *documentRepo) ListStorageKeys(ctx context.Context, batchID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT storage_key FROM documents WHERE batch_id = $1`, batchID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения storage key пакета: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("ошибка сканирования storage key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *documentRepo) UpdateResult(ctx context.Context, d *model.Document) error {
	query := `
		UPDATE documents
		SET status = $2, extracted_content = $3, accuracy = $4, precision = $5,
			loss = $6, enhanced_text = $7, translated_text = $8, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		d.ID, d.Status, d.ExtractedContent, d.Accuracy, d.Precision,
		d.Loss, d.EnhancedText, d.TranslatedText,
	).Scan(&d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления результатов документа: %w", err)
	}
	return nil
}

func (r *documentRepo) Delete(ctx context.Context, docID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, docID)
	if err != nil {
		return fmt.Errorf("ошибка удаления документа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
