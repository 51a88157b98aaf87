package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/godocflow/internal/config"
	"github.com/bigkaa/godocflow/internal/database"
	"github.com/bigkaa/godocflow/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool; контейнер и пул закрываются через t.Cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("docflow_test"),
		postgres.WithUsername("docflow"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	os.Setenv("DF_DB_HOST", host)
	os.Setenv("DF_DB_PORT", port.Port())
	os.Setenv("DF_DB_NAME", "docflow_test")
	os.Setenv("DF_DB_USER", "docflow")
	os.Setenv("DF_DB_PASSWORD", "test-password")
	os.Setenv("DF_DB_SSL_MODE", "disable")
	os.Setenv("DF_DATA_DIR", t.TempDir())

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// newTestBatch создаёт пакет в БД и возвращает его.
func newTestBatch(t *testing.T, repo BatchRepository, ownerID, name string) *model.Batch {
	t.Helper()
	b := &model.Batch{
		ID:      uuid.New().String(),
		OwnerID: ownerID,
		Name:    name,
		Status:  model.BatchStatusPending,
	}
	if err := repo.Create(context.Background(), b); err != nil {
		t.Fatalf("Создание пакета: %v", err)
	}
	return b
}

// newTestDocument возвращает документ для вставки (без записи в БД).
func newTestDocument(batchID, fileName string, size int64) *model.Document {
	return &model.Document{
		ID:         uuid.New().String(),
		BatchID:    batchID,
		FileName:   fileName,
		FileSize:   size,
		MimeType:   "application/pdf",
		StorageKey: fmt.Sprintf("documents/%s/%s", batchID, uuid.New().String()),
		Status:     model.DocumentStatusUploaded,
	}
}

// --- Тесты BatchRepository ---

func TestBatchCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewBatchRepository(pool)

	b := newTestBatch(t, repo, "user-1", "Сканы договоров")
	if b.CreatedAt.IsZero() {
		t.Error("CreatedAt не установлен")
	}

	// GetByID
	got, err := repo.GetByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Name != "Сканы договоров" {
		t.Errorf("Name = %q, хотели %q", got.Name, "Сканы договоров")
	}
	if got.TotalFileCount != 0 || got.TotalFileSize != 0 {
		t.Errorf("новый пакет должен иметь нулевые счётчики: count=%d size=%d",
			got.TotalFileCount, got.TotalFileSize)
	}
	if got.Status != model.BatchStatusPending {
		t.Errorf("Status = %q, хотели %q", got.Status, model.BatchStatusPending)
	}

	// Update
	got.Name = "Переименованный"
	got.Status = model.BatchStatusProcessing
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	got2, _ := repo.GetByID(ctx, b.ID)
	if got2.Name != "Переименованный" || got2.Status != model.BatchStatusProcessing {
		t.Errorf("После Update: Name=%q, Status=%q", got2.Name, got2.Status)
	}

	// Delete
	if err := repo.Delete(ctx, b.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if _, err := repo.GetByID(ctx, b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("После Delete ожидали ErrNotFound, получили: %v", err)
	}
}

func TestBatchListByOwner(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewBatchRepository(pool)

	newTestBatch(t, repo, "owner-a", "first")
	newTestBatch(t, repo, "owner-a", "second")
	newTestBatch(t, repo, "owner-b", "other")

	list, err := repo.ListByOwner(ctx, "owner-a")
	if err != nil {
		t.Fatalf("ListByOwner() ошибка: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListByOwner() вернул %d записей, хотели 2", len(list))
	}
	// Новые первыми
	if list[0].CreatedAt.Before(list[1].CreatedAt) {
		t.Error("пакеты должны быть отсортированы новые первыми")
	}
	for _, b := range list {
		if b.OwnerID != "owner-a" {
			t.Errorf("в выборке чужой пакет: owner=%s", b.OwnerID)
		}
	}
}

// --- Тесты транзакционных счётчиков ---

// TestCountersStayInSync проверяет инвариант: счётчики пакета всегда равны
// количеству и суммарному размеру живых документов.
func TestCountersStayInSync(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	batchRepo := NewBatchRepository(pool)
	docRepo := NewDocumentRepository(pool)
	runner := NewTxRunner(pool)

	b := newTestBatch(t, batchRepo, "user-1", "Test")

	docs := []*model.Document{
		newTestDocument(b.ID, "a.pdf", 1000),
		newTestDocument(b.ID, "b.pdf", 2000),
	}

	// Загрузка: вставка строк + счётчики + статус PENDING в одной транзакции
	pending := model.BatchStatusPending
	var updated *model.Batch
	err := runner.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := NewDocumentRepository(tx).InsertMany(ctx, docs); err != nil {
			return err
		}
		var txErr error
		updated, txErr = NewBatchRepository(tx).AdjustCounters(ctx, b.ID, 2, 3000, &pending)
		return txErr
	})
	if err != nil {
		t.Fatalf("транзакция загрузки: %v", err)
	}

	if updated.TotalFileCount != 2 || updated.TotalFileSize != 3000 {
		t.Errorf("после загрузки: count=%d size=%d, хотели 2/3000",
			updated.TotalFileCount, updated.TotalFileSize)
	}
	if updated.Status != model.BatchStatusPending {
		t.Errorf("Status = %q, хотели PENDING", updated.Status)
	}

	// Удаление одного документа + декремент счётчиков
	err = runner.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := NewDocumentRepository(tx).Delete(ctx, docs[0].ID); err != nil {
			return err
		}
		var txErr error
		updated, txErr = NewBatchRepository(tx).AdjustCounters(ctx, b.ID, -1, -1000, nil)
		return txErr
	})
	if err != nil {
		t.Fatalf("транзакция удаления: %v", err)
	}

	if updated.TotalFileCount != 1 || updated.TotalFileSize != 2000 {
		t.Errorf("после удаления: count=%d size=%d, хотели 1/2000",
			updated.TotalFileCount, updated.TotalFileSize)
	}

	// Сверка с фактическим содержимым documents
	left, err := docRepo.ListByBatch(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListByBatch() ошибка: %v", err)
	}
	var sum int64
	for _, d := range left {
		sum += d.FileSize
	}
	if len(left) != updated.TotalFileCount || sum != updated.TotalFileSize {
		t.Errorf("счётчики разошлись с фактом: факт %d/%d, счётчики %d/%d",
			len(left), sum, updated.TotalFileCount, updated.TotalFileSize)
	}
}

// TestUploadRollsBackAtomically проверяет, что ошибка внутри транзакции
// откатывает и строки documents, и счётчики пакета целиком.
func TestUploadRollsBackAtomically(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	batchRepo := NewBatchRepository(pool)
	docRepo := NewDocumentRepository(pool)
	runner := NewTxRunner(pool)

	b := newTestBatch(t, batchRepo, "user-1", "Rollback")

	boom := errors.New("имитация сбоя после вставки")
	err := runner.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := NewDocumentRepository(tx).InsertMany(ctx, []*model.Document{
			newTestDocument(b.ID, "x.pdf", 500),
		}); err != nil {
			return err
		}
		if _, err := NewBatchRepository(tx).AdjustCounters(ctx, b.ID, 1, 500, nil); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("ожидалась ошибка транзакции, получено: %v", err)
	}

	// Ни документов, ни изменения счётчиков
	after, _ := batchRepo.GetByID(ctx, b.ID)
	if after.TotalFileCount != 0 || after.TotalFileSize != 0 {
		t.Errorf("счётчики должны остаться нулевыми: count=%d size=%d",
			after.TotalFileCount, after.TotalFileSize)
	}
	docs, _ := docRepo.ListByBatch(ctx, b.ID)
	if len(docs) != 0 {
		t.Errorf("документов быть не должно, найдено %d", len(docs))
	}
}

// TestCascadeDeleteAndStorageKeys проверяет сбор ключей до каскадного удаления.
func TestCascadeDeleteAndStorageKeys(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	batchRepo := NewBatchRepository(pool)
	docRepo := NewDocumentRepository(pool)
	runner := NewTxRunner(pool)

	b := newTestBatch(t, batchRepo, "user-1", "Cascade")
	docs := []*model.Document{
		newTestDocument(b.ID, "a.pdf", 100),
		newTestDocument(b.ID, "b.pdf", 200),
	}
	err := runner.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := NewDocumentRepository(tx).InsertMany(ctx, docs); err != nil {
			return err
		}
		_, txErr := NewBatchRepository(tx).AdjustCounters(ctx, b.ID, 2, 300, nil)
		return txErr
	})
	if err != nil {
		t.Fatalf("транзакция загрузки: %v", err)
	}

	keys, err := docRepo.ListStorageKeys(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListStorageKeys() ошибка: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("хотели 2 ключа, получено %d", len(keys))
	}

	if err := batchRepo.Delete(ctx, b.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}

	// Каскад стёр документы
	left, err := docRepo.ListByBatch(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListByBatch() ошибка: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("после каскада документов быть не должно, найдено %d", len(left))
	}
}

// --- Тесты выборки агрегатора и записи агрегатов ---

func TestListCompletedWithMetrics(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	batchRepo := NewBatchRepository(pool)
	docRepo := NewDocumentRepository(pool)
	runner := NewTxRunner(pool)

	b := newTestBatch(t, batchRepo, "user-1", "Aggregate")

	completed := newTestDocument(b.ID, "done.pdf", 100)
	noMetrics := newTestDocument(b.ID, "done-no-metrics.pdf", 100)
	uploaded := newTestDocument(b.ID, "fresh.pdf", 100)

	err := runner.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := NewDocumentRepository(tx).InsertMany(ctx,
			[]*model.Document{completed, noMetrics, uploaded}); err != nil {
			return err
		}
		_, txErr := NewBatchRepository(tx).AdjustCounters(ctx, b.ID, 3, 300, nil)
		return txErr
	})
	if err != nil {
		t.Fatalf("транзакция загрузки: %v", err)
	}

	// COMPLETED с метриками
	acc, prec := 0.9, 0.85
	completed.Status = model.DocumentStatusCompleted
	completed.Accuracy = &acc
	completed.Precision = &prec
	if err := docRepo.UpdateResult(ctx, completed); err != nil {
		t.Fatalf("UpdateResult() ошибка: %v", err)
	}

	// COMPLETED без метрик — не попадает в выборку
	noMetrics.Status = model.DocumentStatusCompleted
	if err := docRepo.UpdateResult(ctx, noMetrics); err != nil {
		t.Fatalf("UpdateResult() ошибка: %v", err)
	}

	got, err := docRepo.ListCompletedWithMetrics(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListCompletedWithMetrics() ошибка: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("хотели 1 документ в выборке, получено %d", len(got))
	}
	if got[0].ID != completed.ID {
		t.Errorf("в выборке не тот документ: %s", got[0].ID)
	}
}

func TestUpdateAggregates(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewBatchRepository(pool)

	b := newTestBatch(t, repo, "user-1", "Metrics")

	acc, prec, loss := 0.85, 0.80, 0.1
	content := "распознанный текст"
	updated, err := repo.UpdateAggregates(ctx, b.ID, &acc, &prec, &loss, &content)
	if err != nil {
		t.Fatalf("UpdateAggregates() ошибка: %v", err)
	}
	if updated.Accuracy == nil || *updated.Accuracy != 0.85 {
		t.Errorf("Accuracy = %v, хотели 0.85", updated.Accuracy)
	}
	if updated.ExtractedContent == nil || *updated.ExtractedContent != content {
		t.Errorf("ExtractedContent = %v", updated.ExtractedContent)
	}

	// Сброс в NULL при пустой выборке
	reset, err := repo.UpdateAggregates(ctx, b.ID, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("UpdateAggregates() сброс ошибка: %v", err)
	}
	if reset.Accuracy != nil || reset.Precision != nil || reset.Loss != nil || reset.ExtractedContent != nil {
		t.Error("все агрегаты должны быть сброшены в NULL")
	}

	if _, err := repo.UpdateAggregates(ctx, uuid.New().String(), nil, nil, nil, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("несуществующий пакет: ожидали ErrNotFound, получили %v", err)
	}
}

// --- Тесты DocumentRepository ---

func TestDocumentGetAndUpdateResult(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	batchRepo := NewBatchRepository(pool)
	docRepo := NewDocumentRepository(pool)
	runner := NewTxRunner(pool)

	b := newTestBatch(t, batchRepo, "user-1", "Docs")
	doc := newTestDocument(b.ID, "scan.pdf", 4096)

	err := runner.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := NewDocumentRepository(tx).InsertMany(ctx, []*model.Document{doc}); err != nil {
			return err
		}
		_, txErr := NewBatchRepository(tx).AdjustCounters(ctx, b.ID, 1, 4096, nil)
		return txErr
	})
	if err != nil {
		t.Fatalf("транзакция загрузки: %v", err)
	}

	got, err := docRepo.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.FileName != "scan.pdf" || got.FileSize != 4096 {
		t.Errorf("документ не совпадает: %s/%d", got.FileName, got.FileSize)
	}
	if got.Status != model.DocumentStatusUploaded {
		t.Errorf("Status = %q, хотели UPLOADED", got.Status)
	}

	// Запись результатов обработки
	text := "извлечённый текст"
	enhanced := "улучшенный текст"
	acc := 0.93
	got.ExtractedContent = &text
	got.EnhancedText = &enhanced
	got.Accuracy = &acc
	got.Status = model.DocumentStatusCompleted
	if err := docRepo.UpdateResult(ctx, got); err != nil {
		t.Fatalf("UpdateResult() ошибка: %v", err)
	}

	got2, _ := docRepo.GetByID(ctx, doc.ID)
	if got2.ExtractedContent == nil || *got2.ExtractedContent != text {
		t.Errorf("ExtractedContent = %v", got2.ExtractedContent)
	}
	if got2.EnhancedText == nil || *got2.EnhancedText != enhanced {
		t.Errorf("EnhancedText = %v", got2.EnhancedText)
	}
	if got2.Status != model.DocumentStatusCompleted {
		t.Errorf("Status = %q, хотели COMPLETED", got2.Status)
	}

	// Идемпотентность: повторная запись того же payload
	if err := docRepo.UpdateResult(ctx, got); err != nil {
		t.Fatalf("повторный UpdateResult() ошибка: %v", err)
	}
	got3, _ := docRepo.GetByID(ctx, doc.ID)
	if *got3.ExtractedContent != text || got3.Status != model.DocumentStatusCompleted {
		t.Error("повторная запись изменила состояние")
	}

	if _, err := docRepo.GetByID(ctx, uuid.New().String()); !errors.Is(err, ErrNotFound) {
		t.Errorf("несуществующий документ: ожидали ErrNotFound, получили %v", err)
	}
}
