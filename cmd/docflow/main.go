// Точка входа DocFlow — backend оцифровки документов.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// инициализирует файловое хранилище, сервисный слой и API handlers,
// запускает topologymetrics и HTTP-сервер с JWT middleware
// и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/godocflow/internal/api/handlers"
	"github.com/bigkaa/godocflow/internal/api/middleware"
	"github.com/bigkaa/godocflow/internal/config"
	"github.com/bigkaa/godocflow/internal/database"
	"github.com/bigkaa/godocflow/internal/repository"
	"github.com/bigkaa/godocflow/internal/server"
	"github.com/bigkaa/godocflow/internal/service"
	"github.com/bigkaa/godocflow/internal/storage/filestore"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("DocFlow запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("DF_DEPHEALTH_GROUP") == "" {
		logger.Warn("DF_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL будет идти через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Файловое хранилище
	store, err := filestore.New(cfg.DataDir)
	if err != nil {
		logger.Error("Ошибка инициализации файлового хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Файловое хранилище инициализировано", slog.String("data_dir", store.DataDir()))

	// 6. Repositories и транзакционный runner
	batchRepo := repository.NewBatchRepository(pool)
	docRepo := repository.NewDocumentRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	// 7. Services
	cleanupSvc := service.NewCleanupCoordinator(store, logger)
	batchSvc := service.NewBatchService(batchRepo, docRepo, cleanupSvc, logger)
	uploadSvc := service.NewUploadService(txRunner, batchRepo, docRepo, store, cleanupSvc, logger)
	aggregateSvc := service.NewAggregateService(batchRepo, docRepo, logger)
	pairingSvc := service.NewPairingService(cfg.PairingMaxEntries, cfg.PairingTTL, logger)

	// 8. Readiness checkers (PostgreSQL + файловое хранилище)
	pgChecker := database.NewReadinessChecker(pool)
	storeChecker := filestore.NewReadinessChecker(store)
	healthHandler := handlers.NewHealthHandler(pgChecker, storeChecker)

	// 9. API handler
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		batchSvc,
		uploadSvc,
		aggregateSvc,
		pairingSvc,
		store,
		cfg.MaxUploadSize,
		cfg.MaxFilesPerUpload,
		logger,
	)

	// 10. JWT middleware (опционально: DF_JWT_JWKS_URL пуст — auth отключён)
	var jwtAuth *middleware.JWTAuth
	if cfg.JWTJWKSURL != "" {
		jwtAuth, err = middleware.NewJWTAuth(
			cfg.JWTJWKSURL,
			cfg.JWTIssuer,
			cfg.JWKSRefreshInterval,
			cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	} else {
		logger.Warn("DF_JWT_JWKS_URL не задан, аутентификация ОТКЛЮЧЕНА (только для разработки)")
	}

	// 11. topologymetrics — мониторинг зависимостей (PostgreSQL + IdP)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"docflow",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.JWTJWKSURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 12. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. Graceful shutdown фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("DocFlow остановлен")
}
