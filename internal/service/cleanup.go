// cleanup.go — координатор удаления физических файлов.
//
// Все удаления best-effort: неудача логируется и учитывается в метрике,
// но никогда не возвращается вызывающему как ошибка операции. Файл,
// который не удалось стереть сейчас, остаётся на диске до следующего
// запуска очистки или ручного вмешательства.
package service

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/godocflow/internal/storage/filestore"
)

var filesCleanedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "df_files_cleaned_total",
	Help: "Количество удалений физических файлов по результату.",
}, []string{"result"})

// CleanupCoordinator — best-effort удаление файлов из хранилища.
type CleanupCoordinator struct {
	store  *filestore.FileStore
	logger *slog.Logger
}

// NewCleanupCoordinator создаёт координатор очистки.
func NewCleanupCoordinator(store *filestore.FileStore, logger *slog.Logger) *CleanupCoordinator {
	return &CleanupCoordinator{
		store:  store,
		logger: logger.With(slog.String("component", "cleanup")),
	}
}

// DeleteStored удаляет один файл. Отсутствующий файл считается успехом
// (удаление идемпотентно). Пустой или небезопасный ключ — неуспех:
// такой ключ указывает на рассинхронизацию БД и хранилища.
func (c *CleanupCoordinator) DeleteStored(storageKey string) bool {
	if storageKey == "" {
		filesCleanedTotal.WithLabelValues("error").Inc()
		c.logger.Error("Пустой storage key при удалении файла")
		return false
	}
	if err := c.store.Delete(storageKey); err != nil {
		filesCleanedTotal.WithLabelValues("error").Inc()
		c.logger.Error("Не удалось удалить файл",
			slog.String("storage_key", storageKey),
			slog.String("error", err.Error()),
		)
		return false
	}
	filesCleanedTotal.WithLabelValues("ok").Inc()
	return true
}

// DeleteAll конкурентно удаляет набор файлов и дожидается завершения
// всех удалений (all-settle, без короткого замыкания на первой ошибке).
// Возвращает количество успешных удалений.
func (c *CleanupCoordinator) DeleteAll(storageKeys []string) int {
	if len(storageKeys) == 0 {
		return 0
	}

	var wg sync.WaitGroup
	results := make([]bool, len(storageKeys))
	for i, key := range storageKeys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			results[i] = c.DeleteStored(key)
		}(i, key)
	}
	wg.Wait()

	deleted := 0
	for _, ok := range results {
		if ok {
			deleted++
		}
	}
	return deleted
}
