package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"stickerbridge/internal/gifcache"
	"stickerbridge/internal/guardian"
	"stickerbridge/internal/logging"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the GIF cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCachePurgeCommand(ctx))
	cacheCmd.AddCommand(newCacheSweepCommand(ctx))

	return cacheCmd
}

type cacheStatsView struct {
	gifcache.Stats
	BudgetBytes int64  `json:"budget_bytes"`
	Policy      string `json:"eviction_policy"`
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show GIF cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cache, err := openCache(ctx)
			if err != nil {
				return err
			}
			stats, err := cache.Stats(cmd.Context())
			if err != nil {
				return err
			}
			view := cacheStatsView{Stats: stats, BudgetBytes: cfg.Cache.MaxBytes, Policy: cfg.Cache.EvictionPolicy}
			if asJSON {
				return writeJSON(cmd, view)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Root:     %s\n", stats.Root)
			fmt.Fprintf(out, "Entries:  %d", stats.Entries)
			if stats.Incoming > 0 {
				fmt.Fprintf(out, " (%d in progress)", stats.Incoming)
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Size:     %s / %s\n", humanize.IBytes(uint64(stats.TotalBytes)), humanize.IBytes(uint64(view.BudgetBytes)))
			fmt.Fprintf(out, "Policy:   %s\n", view.Policy)
			if stats.TotalFSBytes > 0 {
				fmt.Fprintf(out, "Disk:     %s free (%.1f%%)\n", humanize.IBytes(stats.FreeBytes), stats.FreeRatio*100)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print stats as JSON")
	return cmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached GIFs, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := openCache(ctx)
			if err != nil {
				return err
			}
			entries, err := cache.Entries()
			if err != nil {
				return err
			}
			if asJSON {
				if entries == nil {
					entries = []gifcache.Entry{}
				}
				return writeJSON(cmd, entries)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Cache is empty")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					entry.Name,
					humanize.IBytes(uint64(entry.SizeBytes)),
					humanize.Time(entry.ModifiedAt),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"File", "Size", "Modified"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

func newCachePurgeCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every cached GIF",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("purge deletes every cached GIF; rerun with --yes to confirm")
			}
			cache, err := openCache(ctx)
			if err != nil {
				return err
			}
			report := cache.PurgeAll(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Removed %d file(s), freed %s\n", report.Removed, humanize.IBytes(uint64(report.FreedBytes)))
			if report.Failed > 0 {
				return fmt.Errorf("%d file(s) could not be removed", report.Failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "yes", "y", false, "Confirm the purge")
	return cmd
}

func newCacheSweepCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one guardian pass against the cache budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := newToolLogger(cfg)
			if err != nil {
				return err
			}
			cache, err := openCache(ctx)
			if err != nil {
				return err
			}
			report := guardian.New(cfg, cache, logger).Sweep(cmd.Context())
			if asJSON {
				return writeJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			switch report.Action {
			case guardian.ActionSkipped:
				fmt.Fprintln(out, "Another process is sweeping the cache; nothing done")
			case guardian.ActionPurged:
				fmt.Fprintf(out, "Cache was %s of %s; removed %d file(s), freed %s (%s policy)\n",
					humanize.IBytes(uint64(report.SizeBytes)),
					humanize.IBytes(uint64(report.BudgetBytes)),
					report.Purge.Removed,
					humanize.IBytes(uint64(report.Purge.FreedBytes)),
					report.Policy,
				)
			default:
				fmt.Fprintf(out, "Cache is %s of %s; nothing to evict\n",
					humanize.IBytes(uint64(report.SizeBytes)),
					humanize.IBytes(uint64(report.BudgetBytes)),
				)
			}
			if report.Reaped.Removed > 0 {
				fmt.Fprintf(out, "Reaped %d abandoned conversion file(s), freed %s\n",
					report.Reaped.Removed,
					humanize.IBytes(uint64(report.Reaped.FreedBytes)),
				)
			}
			fmt.Fprintf(out, "Took %s\n", report.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the sweep report as JSON")
	return cmd
}

func openCache(ctx *commandContext) (*gifcache.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newToolLogger(cfg)
	if err != nil {
		return nil, err
	}
	cache, err := gifcache.New(cfg.Paths.CacheDir, logging.NewComponentLogger(logger, "cli-cache"))
	if err != nil {
		return nil, fmt.Errorf("open gif cache: %w", err)
	}
	return cache, nil
}
