package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const (
	ansiReset = "\033[0m"
	ansiRed   = "\033[31m"
	ansiGreen = "\033[32m"
	ansiAmber = "\033[33m"
)

func writeJSON(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func paint(enabled bool, color, value string) string {
	if !enabled || value == "" {
		return value
	}
	return color + value + ansiReset
}

// outcomeColor picks the colour for a resolution outcome label.
func outcomeColor(outcome string) string {
	switch outcome {
	case "converted", "cached":
		return ansiGreen
	case "degraded", "passthrough":
		return ansiAmber
	default:
		return ansiRed
	}
}
