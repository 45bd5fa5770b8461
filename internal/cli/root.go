// Пакет cli реализует команды CodeTrace: serve, analyze, history.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bigkaa/codetrace/internal/config"
)

// Форматы вывода.
const (
	formatJSON = "json"
	formatText = "text"
)

// rootOptions — глобальные флаги.
type rootOptions struct {
	format string
}

// NewRootCmd создаёт дерево команд CodeTrace.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "codetrace",
		Short: "Поиск причины UI-ошибки по исходникам и видеозаписи",
		Long: "CodeTrace разбирает zip-архив с исходниками, загружает видеозапись ошибки " +
			"в Gemini и выдаёт отчёт с указанием вероятных мест в коде.",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if opts.format != formatJSON && opts.format != formatText {
				return fmt.Errorf("неверный --format %q (допустимо: json, text)", opts.format)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.format, "format", "f", formatText, "Формат вывода: json или text")

	cmd.AddCommand(
		newServeCmd(),
		newAnalyzeCmd(opts),
		newHistoryCmd(opts),
	)
	return cmd
}

// writeJSONOut печатает значение как JSON с отступами.
func writeJSONOut(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
