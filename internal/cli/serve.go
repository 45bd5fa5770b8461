package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bigkaa/codetrace/internal/api/handlers"
	"github.com/bigkaa/codetrace/internal/api/middleware"
	"github.com/bigkaa/codetrace/internal/config"
	"github.com/bigkaa/codetrace/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			logger.Info("CodeTrace запускается",
				slog.String("version", config.Version),
				slog.Int("port", cfg.Port),
				slog.String("model", cfg.Model),
				slog.String("history_backend", cfg.HistoryBackend),
			)
			if !cfg.APIConfigured() {
				logger.Warn("GOOGLE_API_KEY не задан: анализ недоступен до настройки ключа")
			}

			a, err := buildApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			api := handlers.NewAPIHandler(
				handlers.NewAnalysesHandler(a.pipeline, cfg.AllowedExtensions, cfg.MaxArchiveSize, cfg.MaxVideoSize, logger),
				handlers.NewHistoryHandler(a.history, logger),
				handlers.NewExtensionsHandler(cfg.AllowedExtensions),
				handlers.NewHealthHandler(a.scratch.Dir(), historyPath(cfg), cfg.APIConfigured()),
			)

			srv := server.New(cfg, logger, api,
				middleware.MetricsMiddleware(),
				middleware.RequestLogger(logger),
			)
			if err := srv.Run(cmd.Context()); err != nil {
				logger.Error("Ошибка сервера", slog.String("error", err.Error()))
				return err
			}

			logger.Info("CodeTrace остановлен")
			return nil
		},
	}
}
