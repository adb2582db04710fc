package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"stickerbridge/internal/journal"
	"stickerbridge/internal/sticker"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var sourceURL string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sticker resolutions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJournal(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			var entries []journal.Entry
			if strings.TrimSpace(sourceURL) != "" {
				entries, err = store.ForKey(cmd.Context(), string(sticker.KeyFor(strings.TrimSpace(sourceURL))))
			} else {
				entries, err = store.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}

			if asJSON {
				if entries == nil {
					entries = []journal.Entry{}
				}
				return writeJSON(cmd, entries)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No resolutions recorded")
				return nil
			}
			color := shouldColorize(out)
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				size := "-"
				if entry.SizeBytes > 0 {
					size = humanize.IBytes(uint64(entry.SizeBytes))
				}
				rows = append(rows, []string{
					humanize.Time(entry.CreatedAt),
					entry.Kind,
					paint(color, outcomeColor(entry.Outcome), entry.Outcome),
					entry.Duration.Round(time.Millisecond).String(),
					size,
					historyDetail(entry),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"When", "Kind", "Outcome", "Took", "Size", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))

			counts, err := store.OutcomeCounts(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Totals: "+formatCounts(counts))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().StringVar(&sourceURL, "url", "", "Only show resolutions of this source URL")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")

	cmd.AddCommand(newHistoryPruneCommand(ctx))
	return cmd
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete journal entries older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			store, err := openJournal(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.PruneBefore(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d journal entr%s\n", removed, pluralSuffix(removed))
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age of the oldest entry to keep")
	return cmd
}

func openJournal(ctx *commandContext) (*journal.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := journal.Open(cfg.JournalPath())
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return store, nil
}

func historyDetail(entry journal.Entry) string {
	if entry.ErrorCode == "" {
		return entry.SourceURL
	}
	detail := entry.ErrorCode
	if msg := strings.TrimSpace(entry.ErrorMessage); msg != "" {
		if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
			msg = msg[:idx]
		}
		if len(msg) > 60 {
			msg = msg[:57] + "..."
		}
		detail += ": " + msg
	}
	return detail
}

func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "none"
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, counts[name]))
	}
	return strings.Join(parts, " ")
}

func pluralSuffix(n int64) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
