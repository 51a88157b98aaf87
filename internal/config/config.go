// Пакет config — загрузка и валидация конфигурации DocFlow
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации DocFlow.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут чтения HTTP-запроса
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-ответа
	HTTPWriteTimeout time.Duration
	// Таймаут idle-соединений
	HTTPIdleTimeout time.Duration

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальное количество соединений пула
	DBMaxConns int
	// Минимальное количество поддерживаемых соединений пула
	DBMinConns int

	// --- Хранилище файлов ---

	// Корневая директория хранения загруженных файлов
	DataDir string
	// Максимальный размер одного загружаемого файла в байтах
	MaxUploadSize int64
	// Максимальное количество файлов в одном multipart-запросе
	MaxFilesPerUpload int

	// --- JWT (валидация токенов внешнего IdP) ---

	// URL JWKS endpoint IdP. Пустое значение отключает аутентификацию
	// (только для локальной разработки и тестов).
	JWTJWKSURL string
	// Issuer JWT (опционально; пустое значение отключает проверку issuer)
	JWTIssuer string
	// Интервал фонового обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- Pairing (handshake desktop/mobile) ---

	// Время жизни pairing-кода
	PairingTTL time.Duration
	// Максимальное количество одновременно живых pairing-кодов
	PairingMaxEntries int

	// --- Мониторинг зависимостей ---

	// Имя группы topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// DF_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("DF_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("DF_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("DF_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// DF_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DF_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DF_LOG_LEVEL: %w", err)
	}

	// DF_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("DF_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DF_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// DF_HTTP_READ_TIMEOUT — таймаут чтения запроса (по умолчанию 30s)
	cfg.HTTPReadTimeout, err = getEnvDuration("DF_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DF_HTTP_READ_TIMEOUT: %w", err)
	}

	// DF_HTTP_WRITE_TIMEOUT — таймаут записи ответа (по умолчанию 60s,
	// скачивание больших файлов)
	cfg.HTTPWriteTimeout, err = getEnvDuration("DF_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DF_HTTP_WRITE_TIMEOUT: %w", err)
	}

	// DF_HTTP_IDLE_TIMEOUT — таймаут idle-соединений (по умолчанию 120s)
	cfg.HTTPIdleTimeout, err = getEnvDuration("DF_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DF_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	// DF_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("DF_DB_HOST")
	if err != nil {
		return nil, err
	}

	// DF_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("DF_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("DF_DB_PORT: %w", err)
	}

	// DF_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("DF_DB_NAME")
	if err != nil {
		return nil, err
	}

	// DF_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("DF_DB_USER")
	if err != nil {
		return nil, err
	}

	// DF_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("DF_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// DF_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("DF_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("DF_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// DF_DB_MAX_CONNS — размер пула соединений (по умолчанию 10)
	cfg.DBMaxConns, err = getEnvInt("DF_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DF_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("DF_DB_MAX_CONNS: значение должно быть положительным")
	}

	// DF_DB_MIN_CONNS — минимум живых соединений пула (по умолчанию 2)
	cfg.DBMinConns, err = getEnvInt("DF_DB_MIN_CONNS", 2)
	if err != nil {
		return nil, fmt.Errorf("DF_DB_MIN_CONNS: %w", err)
	}
	if cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		return nil, fmt.Errorf("DF_DB_MIN_CONNS: значение %d вне диапазона 0-%d", cfg.DBMinConns, cfg.DBMaxConns)
	}

	// --- Хранилище файлов ---

	// DF_DATA_DIR — обязательный
	cfg.DataDir, err = getEnvRequired("DF_DATA_DIR")
	if err != nil {
		return nil, err
	}

	// DF_MAX_UPLOAD_SIZE — максимальный размер файла (по умолчанию 52428800 = 50 MiB)
	cfg.MaxUploadSize, err = getEnvInt64("DF_MAX_UPLOAD_SIZE", 50*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("DF_MAX_UPLOAD_SIZE: %w", err)
	}
	if cfg.MaxUploadSize < 1 {
		return nil, fmt.Errorf("DF_MAX_UPLOAD_SIZE: значение должно быть положительным")
	}

	// DF_MAX_FILES_PER_UPLOAD — лимит файлов в одном запросе (по умолчанию 20)
	cfg.MaxFilesPerUpload, err = getEnvInt("DF_MAX_FILES_PER_UPLOAD", 20)
	if err != nil {
		return nil, fmt.Errorf("DF_MAX_FILES_PER_UPLOAD: %w", err)
	}
	if cfg.MaxFilesPerUpload < 1 || cfg.MaxFilesPerUpload > 100 {
		return nil, fmt.Errorf("DF_MAX_FILES_PER_UPLOAD: значение %d вне допустимого диапазона 1-100", cfg.MaxFilesPerUpload)
	}

	// --- JWT ---

	// DF_JWT_JWKS_URL — URL JWKS endpoint IdP (пусто — auth отключён)
	cfg.JWTJWKSURL = getEnvDefault("DF_JWT_JWKS_URL", "")

	// DF_JWT_ISSUER — ожидаемый issuer (опционально)
	cfg.JWTIssuer = getEnvDefault("DF_JWT_ISSUER", "")

	// DF_JWKS_REFRESH_INTERVAL — интервал обновления JWKS-ключей (по умолчанию 5m)
	cfg.JWKSRefreshInterval, err = getEnvDuration("DF_JWKS_REFRESH_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DF_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// DF_JWT_LEEWAY — допуск по времени при проверке JWT (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("DF_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DF_JWT_LEEWAY: %w", err)
	}

	// --- Pairing ---

	// DF_PAIRING_TTL — время жизни pairing-кода (по умолчанию 5m)
	cfg.PairingTTL, err = getEnvDuration("DF_PAIRING_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DF_PAIRING_TTL: %w", err)
	}

	// DF_PAIRING_MAX_ENTRIES — лимит живых pairing-кодов (по умолчанию 10000)
	cfg.PairingMaxEntries, err = getEnvInt("DF_PAIRING_MAX_ENTRIES", 10000)
	if err != nil {
		return nil, fmt.Errorf("DF_PAIRING_MAX_ENTRIES: %w", err)
	}

	// --- Мониторинг зависимостей ---

	// DF_DEPHEALTH_GROUP — имя группы topologymetrics (по умолчанию docflow)
	cfg.DephealthGroup = getEnvDefault("DF_DEPHEALTH_GROUP", "docflow")

	// DF_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("DF_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DF_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// DF_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("DF_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DF_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL
// (для topologymetrics — лейблы, не подключение).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает 64-битное целое из переменной окружения или значение по умолчанию.
// Размеры файлов — int64: суммы по большим пакетам не помещаются в 32 бита.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
