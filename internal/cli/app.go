// app.go — сборка зависимостей CodeTrace из конфигурации.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/bigkaa/codetrace/internal/config"
	"github.com/bigkaa/codetrace/internal/gemini"
	"github.com/bigkaa/codetrace/internal/history"
	"github.com/bigkaa/codetrace/internal/ingest"
	"github.com/bigkaa/codetrace/internal/service"
	"github.com/bigkaa/codetrace/internal/storage/scratch"
)

// app — собранные компоненты приложения.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	scratch  *scratch.Store
	history  history.Store
	pipeline *service.Pipeline
}

// loadConfig загружает конфигурацию и настраивает логгер с выводом в logOut.
func loadConfig(logOut io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("загрузка конфигурации: %w", err)
	}
	return cfg, config.SetupLoggerTo(cfg, logOut), nil
}

// openHistory открывает хранилище истории выбранного бэкенда.
func openHistory(cfg *config.Config, logger *slog.Logger) (history.Store, error) {
	store, err := history.Open(cfg.HistoryBackend, cfg.HistoryFile, cfg.HistoryDB, logger)
	if err != nil {
		return nil, fmt.Errorf("открытие истории: %w", err)
	}
	return store, nil
}

// historyPath — путь к файлу истории активного бэкенда.
func historyPath(cfg *config.Config) string {
	if cfg.HistoryBackend == history.BackendSQLite {
		return cfg.HistoryDB
	}
	return cfg.HistoryFile
}

// buildApp собирает конвейер анализа:
// Gemini-клиент → Uploader/AnalysisService, кэш разбора, история.
func buildApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	rules, err := cfg.Rules()
	if err != nil {
		return nil, err
	}

	scratchStore, err := scratch.New(cfg.ScratchDir)
	if err != nil {
		return nil, fmt.Errorf("директория временных файлов: %w", err)
	}

	store, err := openHistory(cfg, logger)
	if err != nil {
		return nil, err
	}

	client := gemini.New(cfg.APIBaseURL, cfg.APIKey, &http.Client{Timeout: cfg.APITimeout}, logger)

	uploader := service.NewUploader(client.Files(), scratchStore, service.UploadOptions{
		PollInterval: cfg.PollInterval,
		MaxAttempts:  cfg.PollMaxAttempts,
		Timeout:      cfg.UploadTimeout,
	}, logger)
	analyzer := service.NewAnalysisService(client, cfg.Model, logger)
	cache := ingest.NewCache(rules, cfg.IngestCacheSize, cfg.IngestCacheTTL)

	return &app{
		cfg:      cfg,
		logger:   logger,
		scratch:  scratchStore,
		history:  store,
		pipeline: service.NewPipeline(cfg.APIConfigured(), cache, uploader, analyzer, store, logger),
	}, nil
}

// Close освобождает ресурсы приложения.
func (a *app) Close() error {
	return a.history.Close()
}
