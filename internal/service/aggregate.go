// aggregate.go — пересчёт агрегированных метрик пакета.
//
// Агрегатор — чистая функция текущего состояния документов: идемпотентен,
// безопасен для повторного запуска. Блокировок нет — конкурентные вызовы
// для одного пакета дают last-write-wins (принятый компромисс: результат
// любого из вызовов корректен на момент своей выборки).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/godocflow/internal/domain/model"
	"github.com/bigkaa/godocflow/internal/repository"
)

// contentSeparator — видимый разделитель при конкатенации распознанного
// текста документов.
const contentSeparator = "\n\n----------\n\n"

var aggregateRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "df_aggregate_runs_total",
	Help: "Количество пересчётов агрегированных метрик пакетов.",
}, []string{"result"})

// AggregateService — пересчёт агрегированных метрик пакета по COMPLETED документам.
type AggregateService struct {
	batchRepo repository.BatchRepository
	docRepo   repository.DocumentRepository
	logger    *slog.Logger
}

// NewAggregateService создаёт сервис агрегации метрик.
func NewAggregateService(
	batchRepo repository.BatchRepository,
	docRepo repository.DocumentRepository,
	logger *slog.Logger,
) *AggregateService {
	return &AggregateService{
		batchRepo: batchRepo,
		docRepo:   docRepo,
		logger:    logger.With(slog.String("component", "aggregate_service")),
	}
}

// Aggregate пересчитывает метрики пакета по COMPLETED документам
// с валидными accuracy и precision.
//
// Пустая выборка сбрасывает accuracy/precision/loss/extracted_content
// в NULL — явный сигнал «нет данных», а не устаревшее среднее.
// Результат записывается одним UPDATE; возвращается обновлённый пакет.
func (s *AggregateService) Aggregate(ctx context.Context, batchID, requesterID string) (*model.Batch, error) {
	if _, err := authorizeBatch(ctx, s.batchRepo, batchID, requesterID); err != nil {
		return nil, err
	}

	docs, err := s.docRepo.ListCompletedWithMetrics(ctx, batchID)
	if err != nil {
		aggregateRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("выборка документов для агрегации: %w", err)
	}

	accuracy, precision, loss, content := computeAggregate(docs)

	updated, err := s.batchRepo.UpdateAggregates(ctx, batchID, accuracy, precision, loss, content)
	if err != nil {
		aggregateRunsTotal.WithLabelValues("error").Inc()
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: пакет %s", ErrNotFound, batchID)
		}
		return nil, fmt.Errorf("запись агрегированных метрик: %w", err)
	}

	aggregateRunsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("Метрики пакета пересчитаны",
		slog.String("batch_id", batchID),
		slog.Int("documents", len(docs)),
	)

	return updated, nil
}

// computeAggregate вычисляет агрегаты по выборке документов:
//   - среднее accuracy и precision по всей выборке;
//   - среднее loss по подмножеству документов с ненулевым loss
//     (nil, если loss не задан ни у одного);
//   - конкатенация extracted_content в порядке выборки через видимый
//     разделитель, с обрезкой пробелов.
//
// Пустая выборка — все результаты nil.
func computeAggregate(docs []*model.Document) (accuracy, precision, loss *float64, content *string) {
	if len(docs) == 0 {
		return nil, nil, nil, nil
	}

	var accSum, precSum, lossSum float64
	lossCount := 0
	parts := make([]string, 0, len(docs))

	for _, d := range docs {
		accSum += *d.Accuracy
		precSum += *d.Precision
		if d.Loss != nil {
			lossSum += *d.Loss
			lossCount++
		}
		if d.ExtractedContent != nil && *d.ExtractedContent != "" {
			parts = append(parts, *d.ExtractedContent)
		}
	}

	n := float64(len(docs))
	accMean := accSum / n
	precMean := precSum / n
	accuracy = &accMean
	precision = &precMean

	if lossCount > 0 {
		lossMean := lossSum / float64(lossCount)
		loss = &lossMean
	}

	if joined := strings.TrimSpace(strings.Join(parts, contentSeparator)); joined != "" {
		content = &joined
	}

	return accuracy, precision, loss, content
}
