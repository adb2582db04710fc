package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stickerbridge/internal/deps"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check the external tools used for conversion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := deps.CheckBinaries(cmd.Context(), deps.Requirements(cfg))
			missing := deps.MissingRequired(statuses)

			if asJSON {
				if err := writeJSON(cmd, statuses); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				color := shouldColorize(out)
				rows := make([][]string, 0, len(statuses))
				for _, status := range statuses {
					rows = append(rows, []string{
						status.Name,
						status.Command,
						dependencyState(status, color),
						yesNo(!status.Optional),
						dependencyDetail(status),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Tool", "Command", "Status", "Required", "Detail"},
					rows,
					nil,
				))
			}

			if len(missing) > 0 {
				names := make([]string, 0, len(missing))
				for _, status := range missing {
					names = append(names, status.Command)
				}
				return fmt.Errorf("missing required tools: %s", strings.Join(names, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print tool status as JSON")
	return cmd
}

func dependencyState(status deps.Status, color bool) string {
	switch {
	case status.Available:
		return paint(color, ansiGreen, "ok")
	case status.Optional:
		return paint(color, ansiAmber, "missing")
	default:
		return paint(color, ansiRed, "missing")
	}
}

func dependencyDetail(status deps.Status) string {
	switch {
	case status.Version != "":
		return status.Version
	case status.Available:
		return status.Path
	case status.Detail != "":
		return status.Detail
	default:
		return status.Description
	}
}
