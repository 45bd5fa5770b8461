package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bigkaa/codetrace/internal/ingest"
	"github.com/bigkaa/codetrace/internal/service"
)

// analyzeOptions — флаги команды analyze.
type analyzeOptions struct {
	zipPath     string
	videoPath   string
	description string
	extensions  string
}

// analyzeResult — вывод analyze в формате json.
type analyzeResult struct {
	ID             string `json:"id"`
	HistoryID      int    `json:"history_id,omitempty"`
	FilesProcessed int    `json:"files_processed"`
	FilesSkipped   int    `json:"files_skipped"`
	Report         string `json:"report"`
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Проанализировать архив и видеозапись ошибки",
		Long: "Отчёт выводится в stdout по мере генерации, этапы — в stderr.\n" +
			"С --format json отчёт выводится целиком после завершения.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.zipPath, "zip", "", "zip-архив с исходниками (обязательно)")
	cmd.Flags().StringVar(&opts.videoPath, "video", "", "видеозапись ошибки (обязательно)")
	cmd.Flags().StringVarP(&opts.description, "description", "d", "", "описание ошибки")
	cmd.Flags().StringVarP(&opts.extensions, "ext", "e", "", "расширения через запятую (по умолчанию CT_ALLOWED_EXTENSIONS)")
	_ = cmd.MarkFlagRequired("zip")
	_ = cmd.MarkFlagRequired("video")

	return cmd
}

func runAnalyze(cmd *cobra.Command, root *rootOptions, opts *analyzeOptions) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	cfg, logger, err := loadConfig(stderr)
	if err != nil {
		return err
	}

	info, err := os.Stat(opts.zipPath)
	if err != nil {
		return fmt.Errorf("архив: %w", err)
	}
	if info.Size() > cfg.MaxArchiveSize {
		return fmt.Errorf("архив превышает %d байт", cfg.MaxArchiveSize)
	}
	archive, err := os.ReadFile(opts.zipPath)
	if err != nil {
		return fmt.Errorf("чтение архива: %w", err)
	}

	video, err := os.Open(opts.videoPath)
	if err != nil {
		return fmt.Errorf("видео: %w", err)
	}
	defer video.Close()

	extensions := ingest.ParseExtensionList(opts.extensions)
	if len(extensions) == 0 {
		extensions = cfg.AllowedExtensions
	}

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	streaming := root.format == formatText
	obs := service.ObserverFuncs{
		OnStage: func(stage service.Stage) {
			fmt.Fprintf(stderr, "[%s]\n", stage)
		},
		OnChunk: func(text string) {
			if streaming {
				fmt.Fprint(stdout, text)
			}
		},
	}

	out, err := a.pipeline.Run(cmd.Context(), service.Request{
		Archive:     archive,
		ArchiveName: filepath.Base(opts.zipPath),
		Video:       video,
		VideoName:   filepath.Base(opts.videoPath),
		Description: opts.description,
		Extensions:  extensions,
	}, obs)
	if streaming && out != nil {
		fmt.Fprintln(stdout)
	}
	if err != nil {
		return err
	}

	if streaming {
		fmt.Fprintf(stderr, "Файлов проанализировано: %d, пропущено: %d, запись истории #%d\n",
			out.Ingest.FilesProcessed, out.Ingest.FilesSkipped, out.Entry.ID)
		return nil
	}

	return writeJSONOut(stdout, analyzeResult{
		ID:             out.ID,
		HistoryID:      out.Entry.ID,
		FilesProcessed: out.Ingest.FilesProcessed,
		FilesSkipped:   out.Ingest.FilesSkipped,
		Report:         out.Report,
	})
}
