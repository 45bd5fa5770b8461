package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/bigkaa/codetrace/internal/history"
)

// clipboardWrite — запись в буфер обмена (подменяется в тестах).
var clipboardWrite = clipboard.WriteAll

func newHistoryCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Журнал выполненных анализов",
	}
	cmd.AddCommand(
		newHistoryListCmd(root),
		newHistoryShowCmd(root),
		newHistoryClearCmd(root),
		newHistoryCountCmd(root),
	)
	return cmd
}

// withHistory открывает хранилище истории на время выполнения fn.
func withHistory(cmd *cobra.Command, fn func(store history.Store) error) error {
	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	store, err := openHistory(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newHistoryListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Список анализов (новые первыми)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withHistory(cmd, func(store history.Store) error {
				entries := store.Load(cmd.Context())
				out := cmd.OutOrStdout()

				if root.format == formatJSON {
					return writeJSONOut(out, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, "История пуста")
					return nil
				}

				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tВРЕМЯ\tАРХИВ\tВИДЕО\tФАЙЛОВ")
				for _, e := range entries {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n", e.ID, e.Timestamp, e.ZipName, e.VideoName, e.FilesAnalyzed)
				}
				return tw.Flush()
			})
		},
	}
}

func newHistoryShowCmd(root *rootOptions) *cobra.Command {
	var copyReport bool

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Показать отчёт анализа",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id <= 0 {
				return fmt.Errorf("неверный ID %q: нужно положительное целое число", args[0])
			}

			return withHistory(cmd, func(store history.Store) error {
				entry, err := store.Get(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("запись %d: %w", id, err)
				}

				out := cmd.OutOrStdout()
				if root.format == formatJSON {
					if err := writeJSONOut(out, entry); err != nil {
						return err
					}
				} else {
					fmt.Fprintf(out, "#%d  %s\nАрхив: %s\nВидео: %s\nФайлов: %d\n\n%s\n",
						entry.ID, entry.Timestamp, entry.ZipName, entry.VideoName, entry.FilesAnalyzed, entry.FullResult)
				}

				if copyReport {
					if err := clipboardWrite(entry.FullResult); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "Не удалось скопировать в буфер обмена: %v\n", err)
					} else {
						fmt.Fprintln(cmd.ErrOrStderr(), "Отчёт скопирован в буфер обмена")
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&copyReport, "copy", false, "Скопировать отчёт в буфер обмена")
	return cmd
}

func newHistoryClearCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Удалить всю историю",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withHistory(cmd, func(store history.Store) error {
				if err := store.Clear(cmd.Context()); err != nil {
					return err
				}
				if root.format == formatJSON {
					return writeJSONOut(cmd.OutOrStdout(), map[string]bool{"cleared": true})
				}
				fmt.Fprintln(cmd.OutOrStdout(), "История очищена")
				return nil
			})
		},
	}
}

func newHistoryCountCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Количество записей в истории",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withHistory(cmd, func(store history.Store) error {
				n := store.Count(cmd.Context())
				if root.format == formatJSON {
					return writeJSONOut(cmd.OutOrStdout(), map[string]int{"count": n})
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}
