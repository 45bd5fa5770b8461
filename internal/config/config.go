// Пакет config — загрузка и валидация конфигурации CodeTrace
// из переменных окружения (и файла .env, если он есть).
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/bigkaa/codetrace/internal/ingest"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// apiKeyPlaceholder — значение-заглушка из шаблона .env; ключ не задан.
const apiKeyPlaceholder = "your_api_key_here"

// Config содержит все параметры конфигурации CodeTrace.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Путь к TLS-сертификату (пусто — HTTP)
	TLSCert string
	// Путь к TLS-ключу
	TLSKey string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration

	// --- Gemini API ---

	// API-ключ (GOOGLE_API_KEY)
	APIKey string
	// Базовый URL API
	APIBaseURL string
	// Имя модели
	Model string
	// Таймаут HTTP-клиента (0 — без таймаута)
	APITimeout time.Duration

	// --- Загрузка видео ---

	// Директория временных файлов
	ScratchDir string
	// Интервал опроса состояния видео
	PollInterval time.Duration
	// Предельное число опросов (0 — без ограничения)
	PollMaxAttempts int
	// Предельное время ожидания готовности (0 — без ограничения)
	UploadTimeout time.Duration
	// Максимальный размер видео в байтах
	MaxVideoSize int64

	// --- Разбор архива ---

	// Расширения по умолчанию
	AllowedExtensions ingest.ExtensionSet
	// YAML-файл правил игнорирования (пусто — встроенные правила)
	RulesFile string
	// Размер кэша результатов разбора (0 — кэш отключён)
	IngestCacheSize int
	// TTL записей кэша
	IngestCacheTTL time.Duration
	// Максимальный размер архива в байтах
	MaxArchiveSize int64

	// --- История ---

	// Бэкенд истории (json, sqlite)
	HistoryBackend string
	// Путь к JSON-файлу истории
	HistoryFile string
	// Путь к базе SQLite
	HistoryDB string
}

// Load загружает конфигурацию из переменных окружения.
// Файл .env в текущей директории читается, если существует;
// уже заданные переменные окружения им не переопределяются.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	// --- Сервер ---

	// CT_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("CT_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("CT_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CT_PORT: порт %d вне диапазона 1-65535", cfg.Port)
	}

	// CT_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CT_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CT_LOG_LEVEL: %w", err)
	}

	// CT_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("CT_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CT_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// CT_TLS_CERT / CT_TLS_KEY — задаются парой
	cfg.TLSCert = os.Getenv("CT_TLS_CERT")
	cfg.TLSKey = os.Getenv("CT_TLS_KEY")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("CT_TLS_CERT и CT_TLS_KEY должны задаваться вместе")
	}

	if cfg.HTTPReadTimeout, err = getEnvDuration("CT_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("CT_HTTP_READ_TIMEOUT: %w", err)
	}
	// Анализ длится минутами: ответ пишется потоком
	if cfg.HTTPWriteTimeout, err = getEnvDuration("CT_HTTP_WRITE_TIMEOUT", 30*time.Minute); err != nil {
		return nil, fmt.Errorf("CT_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("CT_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("CT_HTTP_IDLE_TIMEOUT: %w", err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("CT_SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("CT_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Gemini API ---

	cfg.APIKey = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	cfg.APIBaseURL = getEnvDefault("CT_API_BASE_URL", "https://generativelanguage.googleapis.com")
	cfg.Model = getEnvDefault("CT_MODEL", "gemini-2.5-flash")
	if cfg.APITimeout, err = getEnvDuration("CT_API_TIMEOUT", 0); err != nil {
		return nil, fmt.Errorf("CT_API_TIMEOUT: %w", err)
	}

	// --- Загрузка видео ---

	cfg.ScratchDir = getEnvDefault("CT_SCRATCH_DIR", filepath.Join(os.TempDir(), "codetrace"))

	if cfg.PollInterval, err = getEnvDuration("CT_POLL_INTERVAL", 2*time.Second); err != nil {
		return nil, fmt.Errorf("CT_POLL_INTERVAL: %w", err)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("CT_POLL_INTERVAL: значение должно быть > 0")
	}

	if cfg.PollMaxAttempts, err = getEnvInt("CT_POLL_MAX_ATTEMPTS", 0); err != nil {
		return nil, fmt.Errorf("CT_POLL_MAX_ATTEMPTS: %w", err)
	}
	if cfg.PollMaxAttempts < 0 {
		return nil, fmt.Errorf("CT_POLL_MAX_ATTEMPTS: значение должно быть >= 0")
	}

	if cfg.UploadTimeout, err = getEnvDuration("CT_UPLOAD_TIMEOUT", 0); err != nil {
		return nil, fmt.Errorf("CT_UPLOAD_TIMEOUT: %w", err)
	}
	if cfg.UploadTimeout < 0 {
		return nil, fmt.Errorf("CT_UPLOAD_TIMEOUT: значение должно быть >= 0")
	}

	if cfg.MaxVideoSize, err = getEnvInt64("CT_MAX_VIDEO_SIZE", 2<<30); err != nil {
		return nil, fmt.Errorf("CT_MAX_VIDEO_SIZE: %w", err)
	}

	// --- Разбор архива ---

	cfg.AllowedExtensions = ingest.NewExtensionSet(ingest.DefaultExtensions...)
	if raw := os.Getenv("CT_ALLOWED_EXTENSIONS"); raw != "" {
		cfg.AllowedExtensions = ingest.ParseExtensionList(raw)
		if len(cfg.AllowedExtensions) == 0 {
			return nil, fmt.Errorf("CT_ALLOWED_EXTENSIONS: пустой список расширений")
		}
	}

	cfg.RulesFile = os.Getenv("CT_RULES_FILE")

	if cfg.IngestCacheSize, err = getEnvInt("CT_INGEST_CACHE_SIZE", 32); err != nil {
		return nil, fmt.Errorf("CT_INGEST_CACHE_SIZE: %w", err)
	}
	if cfg.IngestCacheSize < 0 {
		return nil, fmt.Errorf("CT_INGEST_CACHE_SIZE: значение должно быть >= 0")
	}
	if cfg.IngestCacheTTL, err = getEnvDuration("CT_INGEST_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, fmt.Errorf("CT_INGEST_CACHE_TTL: %w", err)
	}

	if cfg.MaxArchiveSize, err = getEnvInt64("CT_MAX_ARCHIVE_SIZE", 100<<20); err != nil {
		return nil, fmt.Errorf("CT_MAX_ARCHIVE_SIZE: %w", err)
	}

	// --- История ---

	cfg.HistoryBackend = strings.ToLower(getEnvDefault("CT_HISTORY_BACKEND", "json"))
	if cfg.HistoryBackend != "json" && cfg.HistoryBackend != "sqlite" {
		return nil, fmt.Errorf("CT_HISTORY_BACKEND: недопустимый бэкенд %q, допустимые: json, sqlite", cfg.HistoryBackend)
	}
	cfg.HistoryFile = getEnvDefault("CT_HISTORY_FILE", "analysis_history.json")
	cfg.HistoryDB = getEnvDefault("CT_HISTORY_DB", "analysis_history.db")

	return cfg, nil
}

// APIConfigured возвращает true, если задан настоящий API-ключ
// (не пустой и не заглушка из шаблона).
func (c *Config) APIConfigured() bool {
	return c.APIKey != "" && c.APIKey != apiKeyPlaceholder
}

// Rules возвращает правила игнорирования: из CT_RULES_FILE или встроенные.
func (c *Config) Rules() (ingest.Rules, error) {
	if c.RulesFile == "" {
		return ingest.DefaultRules(), nil
	}
	rules, err := ingest.LoadRulesFile(c.RulesFile)
	if err != nil {
		return ingest.Rules{}, fmt.Errorf("CT_RULES_FILE: %w", err)
	}
	return rules, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
// Логи пишутся в stdout.
func SetupLogger(cfg *Config) *slog.Logger {
	return SetupLoggerTo(cfg, os.Stdout)
}

// SetupLoggerTo настраивает глобальный slog-логгер с выводом в w.
// CLI-команды пишут логи в stderr, чтобы stdout оставался для отчёта.
func SetupLoggerTo(cfg *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

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

// getEnvInt64 возвращает размер в байтах из переменной окружения (> 0).
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	if n <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
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
