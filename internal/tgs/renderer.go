package tgs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"stickerbridge/internal/config"
)

// Renderer turns a decompressed Lottie document into GIF bytes.
type Renderer interface {
	Render(ctx context.Context, document []byte, width, height int) ([]byte, error)
}

// maxStderr bounds renderer diagnostics kept on errors.
const maxStderr = 2048

// CommandRenderer runs an external renderer that reads the document on stdin
// and writes the GIF to stdout. The placeholders {width} and {height} in Args
// are replaced with the requested size.
type CommandRenderer struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// NewCommandRenderer builds a CommandRenderer from configuration.
func NewCommandRenderer(cfg *config.Config) *CommandRenderer {
	return &CommandRenderer{
		Command: cfg.Renderer.Command,
		Args:    append([]string(nil), cfg.Renderer.Args...),
		Timeout: cfg.RendererTimeout(),
	}
}

// Render implements Renderer.
func (r *CommandRenderer) Render(ctx context.Context, document []byte, width, height int) ([]byte, error) {
	if strings.TrimSpace(r.Command) == "" {
		return nil, errors.New("renderer command not configured")
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	args := expandArgs(r.Args, width, height)
	cmd := exec.CommandContext(ctx, r.Command, args...) //nolint:gosec
	cmd.Stdin = bytes.NewReader(document)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out after %s: %w", r.Command, r.Timeout, context.DeadlineExceeded)
		}
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > maxStderr {
			detail = detail[len(detail)-maxStderr:]
		}
		if detail == "" {
			return nil, fmt.Errorf("%s: %w", r.Command, err)
		}
		return nil, fmt.Errorf("%s: %w: %s", r.Command, err, detail)
	}
	return stdout.Bytes(), nil
}

func expandArgs(args []string, width, height int) []string {
	replacer := strings.NewReplacer(
		"{width}", strconv.Itoa(width),
		"{height}", strconv.Itoa(height),
	)
	out := make([]string, 0, len(args))
	for _, arg := range args {
		out = append(out, replacer.Replace(arg))
	}
	return out
}
