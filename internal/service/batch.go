// batch.go — сервис пакетов документов.
// CRUD пакетов: создание, получение, список, обновление, каскадное удаление.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/godocflow/internal/domain/model"
	"github.com/bigkaa/godocflow/internal/repository"
)

// BatchService — сервис пакетов документов.
type BatchService struct {
	batchRepo repository.BatchRepository
	docRepo   repository.DocumentRepository
	cleanup   *CleanupCoordinator
	logger    *slog.Logger
}

// NewBatchService создаёт сервис пакетов.
func NewBatchService(
	batchRepo repository.BatchRepository,
	docRepo repository.DocumentRepository,
	cleanup *CleanupCoordinator,
	logger *slog.Logger,
) *BatchService {
	return &BatchService{
		batchRepo: batchRepo,
		docRepo:   docRepo,
		cleanup:   cleanup,
		logger:    logger.With(slog.String("component", "batch_service")),
	}
}

// BatchUpdate — частичное обновление пакета.
type BatchUpdate struct {
	// Name — новое имя (nil — не менять)
	Name *string
	// Status — новый статус (nil — не менять)
	Status *model.BatchStatus
}

// Create создаёт пустой пакет с нулевыми счётчиками и статусом PENDING.
func (s *BatchService) Create(ctx context.Context, ownerID, name string) (*model.Batch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: имя пакета не может быть пустым", ErrValidation)
	}

	b := &model.Batch{
		ID:      uuid.New().String(),
		OwnerID: ownerID,
		Name:    name,
		Status:  model.BatchStatusPending,
	}

	if err := s.batchRepo.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("создание пакета: %w", err)
	}

	s.logger.Info("Пакет создан",
		slog.String("batch_id", b.ID),
		slog.String("owner_id", ownerID),
		slog.String("name", name),
	)

	return b, nil
}

// Get возвращает пакет владельца, опционально с документами.
func (s *BatchService) Get(ctx context.Context, batchID, requesterID string, withDocuments bool) (*model.Batch, []*model.Document, error) {
	b, err := authorizeBatch(ctx, s.batchRepo, batchID, requesterID)
	if err != nil {
		return nil, nil, err
	}

	if !withDocuments {
		return b, nil, nil
	}

	docs, err := s.docRepo.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, nil, fmt.Errorf("получение документов пакета: %w", err)
	}
	return b, docs, nil
}

// List возвращает пакеты владельца, новые первыми.
func (s *BatchService) List(ctx context.Context, ownerID string) ([]*model.Batch, error) {
	batches, err := s.batchRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("получение списка пакетов: %w", err)
	}
	return batches, nil
}

// Update выполняет частичное обновление имени и/или статуса пакета.
// Статус должен быть допустимым значением enum.
func (s *BatchService) Update(ctx context.Context, batchID, requesterID string, upd BatchUpdate) (*model.Batch, error) {
	b, err := authorizeBatch(ctx, s.batchRepo, batchID, requesterID)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: имя пакета не может быть пустым", ErrValidation)
		}
		b.Name = name
	}
	if upd.Status != nil {
		if !upd.Status.Valid() {
			return nil, fmt.Errorf("%w: недопустимый статус пакета %q", ErrValidation, *upd.Status)
		}
		b.Status = *upd.Status
	}

	if err := s.batchRepo.Update(ctx, b); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: пакет %s", ErrNotFound, batchID)
		}
		return nil, fmt.Errorf("обновление пакета: %w", err)
	}

	s.logger.Info("Пакет обновлён", slog.String("batch_id", batchID))

	return b, nil
}

// Delete удаляет пакет и каскадно — все его документы.
//
// Storage key документов собираются ДО удаления строк: после каскада БД
// их уже не восстановить. Физические файлы удаляются ПОСЛЕ успешного
// коммита, конкурентно, в режиме best-effort — неудача удаления файла
// не откатывает и не фейлит операцию.
func (s *BatchService) Delete(ctx context.Context, batchID, requesterID string) error {
	if _, err := authorizeBatch(ctx, s.batchRepo, batchID, requesterID); err != nil {
		return err
	}

	keys, err := s.docRepo.ListStorageKeys(ctx, batchID)
	if err != nil {
		return fmt.Errorf("сбор storage key перед удалением: %w", err)
	}

	if err := s.batchRepo.Delete(ctx, batchID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: пакет %s", ErrNotFound, batchID)
		}
		return fmt.Errorf("удаление пакета: %w", err)
	}

	deleted := s.cleanup.DeleteAll(keys)

	s.logger.Info("Пакет удалён",
		slog.String("batch_id", batchID),
		slog.Int("documents", len(keys)),
		slog.Int("files_deleted", deleted),
	)

	return nil
}
