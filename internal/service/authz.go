// authz.go — централизованная проверка владения пакетом.
//
// Каждый путь чтения/записи пакета или документа обязан пройти через
// authorizeBatch ПЕРВЫМ, до любого I/O с побочными эффектами. Проверка
// различает «пакета нет» (ErrNotFound) и «пакет чужой» (ErrForbidden) —
// содержимое чужого пакета при этом не раскрывается.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bigkaa/godocflow/internal/domain/model"
	"github.com/bigkaa/godocflow/internal/repository"
)

// authorizeBatch загружает пакет и сверяет владельца с requesterID.
func authorizeBatch(ctx context.Context, repo repository.BatchRepository, batchID, requesterID string) (*model.Batch, error) {
	b, err := repo.GetByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: пакет %s", ErrNotFound, batchID)
		}
		return nil, fmt.Errorf("получение пакета: %w", err)
	}
	if b.OwnerID != requesterID {
		return nil, fmt.Errorf("%w: пакет принадлежит другому пользователю", ErrForbidden)
	}
	return b, nil
}
