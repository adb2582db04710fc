package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"stickerbridge/internal/config"
	"stickerbridge/internal/deps"
	"stickerbridge/internal/guardian"
	"stickerbridge/internal/logging"
	"stickerbridge/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service and the cache guardian",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if strings.TrimSpace(bind) != "" {
				cfg.Server.Bind = strings.TrimSpace(bind)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Override server.bind")
	return cmd
}

func runServe(cmdCtx context.Context, cfg *config.Config) error {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	statuses := deps.CheckBinaries(signalCtx, deps.Requirements(cfg))
	for _, missing := range deps.MissingRequired(statuses) {
		logging.WarnWithContext(signalCtx, logger, "required tool unavailable", "dependency_missing",
			logging.String("tool", missing.Name),
			logging.String("command", missing.Command),
			logging.String(logging.FieldErrorHint, "install "+missing.Command+" or set transcoder.ffmpeg_binary"),
			logging.String(logging.FieldImpact, "video stickers will fail to convert"),
		)
	}

	svc, err := openServices(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	guard := guardian.New(cfg, svc.cache, logger)
	go guard.Run(signalCtx)

	srv := server.New(cfg, server.Deps{
		Cache:    svc.cache,
		Resolver: svc.dispatcher,
		Guardian: guard,
		Latency:  svc.latency,
	}, logger)
	if err := srv.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("stickerbridge shutting down")
	srv.Stop()
	return nil
}
