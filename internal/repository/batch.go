package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/godocflow/internal/domain/model"
)

// BatchRepository — интерфейс CRUD для таблицы batches.
type BatchRepository interface {
	// Create создаёт новый пакет с нулевыми счётчиками.
	Create(ctx context.Context, b *model.Batch) error
	// GetByID возвращает пакет по UUID.
	GetByID(ctx context.Context, batchID string) (*model.Batch, error)
	// ListByOwner возвращает пакеты владельца, новые первыми.
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Batch, error)
	// Update обновляет имя и статус пакета.
	Update(ctx context.Context, b *model.Batch) error
	// Delete удаляет пакет; документы удаляются каскадно (FK ON DELETE CASCADE).
	Delete(ctx context.Context, batchID string) error
	// AdjustCounters атомарно изменяет счётчики пакета на указанные дельты
	// и при необходимости переводит статус. Вызывается только внутри
	// транзакции вместе с изменением строк documents.
	AdjustCounters(ctx context.Context, batchID string, deltaCount int, deltaSize int64, status *model.BatchStatus) (*model.Batch, error)
	// UpdateAggregates записывает агрегированные метрики пакета одним UPDATE.
	// nil-значения записываются как NULL (явный сигнал «нет данных»).
	UpdateAggregates(ctx context.Context, batchID string, accuracy, precision, loss *float64, content *string) (*model.Batch, error)
}

// batchRepo — реализация BatchRepository.
type batchRepo struct {
	db DBTX
}

// NewBatchRepository создаёт репозиторий пакетов.
func NewBatchRepository(db DBTX) BatchRepository {
	return &batchRepo{db: db}
}

// batchColumns — список колонок batches в порядке сканирования scanBatch.
const batchColumns = `id, owner_id, name, status, total_file_count, total_file_size,
		accuracy, precision, loss, extracted_content, created_at, updated_at`

// scanBatch сканирует строку batches в model.Batch.
func scanBatch(row pgx.Row) (*model.Batch, error) {
	b := &model.Batch{}
	err := row.Scan(
		&b.ID, &b.OwnerID, &b.Name, &b.Status, &b.TotalFileCount, &b.TotalFileSize,
		&b.Accuracy, &b.Precision, &b.Loss, &b.ExtractedContent, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (r *batchRepo) Create(ctx context.Context, b *model.Batch) error {
	query := `
		INSERT INTO batches (id, owner_id, name, status, total_file_count, total_file_size)
		VALUES ($1, $2, $3, $4, 0, 0)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query, b.ID, b.OwnerID, b.Name, b.Status).
		Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: пакет с таким ID уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания пакета: %w", err)
	}
	b.TotalFileCount = 0
	b.TotalFileSize = 0
	return nil
}

func (r *batchRepo) GetByID(ctx context.Context, batchID string) (*model.Batch, error) {
	query := fmt.Sprintf(`SELECT %s FROM batches WHERE id = $1`, batchColumns)

	b, err := scanBatch(r.db.QueryRow(ctx, query, batchID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пакета: %w", err)
	}
	return b, nil
}

func (r *batchRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Batch, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM batches
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC`, batchColumns)

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка пакетов: %w", err)
	}
	defer rows.Close()

	var result []*model.Batch
	for rows.Next() {
		b := &model.Batch{}
		if err := rows.Scan(
			&b.ID, &b.OwnerID, &b.Name, &b.Status, &b.TotalFileCount, &b.TotalFileSize,
			&b.Accuracy, &b.Precision, &b.Loss, &b.ExtractedContent, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования пакета: %w", err)
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (r *batchRepo) Update(ctx context.Context, b *model.Batch) error {
	query := `
		UPDATE batches
		SET name = $2, status = $3, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query, b.ID, b.Name, b.Status).Scan(&b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления пакета: %w", err)
	}
	return nil
}

func (r *batchRepo) Delete(ctx context.Context, batchID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM batches WHERE id = $1`, batchID)
	if err != nil {
		return fmt.Errorf("ошибка удаления пакета: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *batchRepo) AdjustCounters(ctx context.Context, batchID string, deltaCount int, deltaSize int64, status *model.BatchStatus) (*model.Batch, error) {
	// CHECK-ограничения таблицы не дадут счётчикам уйти в минус —
	// рассинхронизация счётчиков и строк documents проявится ошибкой транзакции,
	// а не тихим дрейфом.
	query := fmt.Sprintf(`
		UPDATE batches
		SET total_file_count = total_file_count + $2,
			total_file_size = total_file_size + $3,
			status = COALESCE($4, status),
			updated_at = now()
		WHERE id = $1
		RETURNING %s`, batchColumns)

	b, err := scanBatch(r.db.QueryRow(ctx, query, batchID, deltaCount, deltaSize, status))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка изменения счётчиков пакета: %w", err)
	}
	return b, nil
}

func (r *batchRepo) UpdateAggregates(ctx context.Context, batchID string, accuracy, precision, loss *float64, content *string) (*model.Batch, error) {
	query := fmt.Sprintf(`
		UPDATE batches
		SET accuracy = $2, precision = $3, loss = $4, extracted_content = $5,
			updated_at = now()
		WHERE id = $1
		RETURNING %s`, batchColumns)

	b, err := scanBatch(r.db.QueryRow(ctx, query, batchID, accuracy, precision, loss, content))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка записи агрегированных метрик: %w", err)
	}
	return b, nil
}
