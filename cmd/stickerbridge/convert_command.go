package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stickerbridge/internal/dispatch"
	"stickerbridge/internal/sticker"
)

type convertResult struct {
	Outcome dispatch.Outcome `json:"outcome"`
	Key     sticker.Key      `json:"key,omitempty"`
	URL     string           `json:"url"`
	Path    string           `json:"path,omitempty"`
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var kindFlag string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "convert <url>",
		Short: "Resolve one sticker into the cache",
		Long: "Resolve one sticker the way the service would: animated stickers are " +
			"converted into the GIF cache, static ones pass through unchanged. " +
			"The kind is inferred from the URL extension unless --kind is set.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			sourceURL := strings.TrimSpace(args[0])
			kind := sticker.KindFromExtension(sourceURL)
			if strings.TrimSpace(kindFlag) != "" {
				if kind, err = sticker.ParseKind(kindFlag); err != nil {
					return err
				}
			}

			logger, err := newToolLogger(cfg)
			if err != nil {
				return err
			}
			svc, err := openServices(cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.dispatcher.Resolve(cmd.Context(), sticker.Asset{URL: sourceURL, Kind: kind})
			if err != nil {
				return fmt.Errorf("convert %s: %w", sourceURL, err)
			}

			result := convertResult{Outcome: res.Outcome, Key: res.Key, URL: res.URL, Path: res.Handle.Path}
			if asJSON {
				return writeJSON(cmd, result)
			}

			out := cmd.OutOrStdout()
			color := shouldColorize(out)
			fmt.Fprintf(out, "Outcome: %s\n", paint(color, outcomeColor(string(res.Outcome)), string(res.Outcome)))
			if res.Key != "" {
				fmt.Fprintf(out, "Key:     %s\n", res.Key)
			}
			fmt.Fprintf(out, "URL:     %s\n", res.URL)
			if result.Path != "" {
				fmt.Fprintf(out, "Path:    %s\n", result.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kindFlag, "kind", "", "Sticker kind: static, video or vector")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}
