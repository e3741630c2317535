package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seanotes/seanotes/internal/app/httpapi"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and background jobs",
		RunE:  runServe,
	}
	cmd.Flags().Int("port", 0, "listen port (overrides PORT)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, cleanup, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	server := httpapi.NewServer(application, fmt.Sprintf(":%d", cfg.Server.Port))
	if err := application.Attach(server); err != nil {
		return err
	}
	if err := application.Start(ctx); err != nil {
		_ = application.Stop(context.Background())
		return fmt.Errorf("start services: %w", err)
	}
	log.WithFields(map[string]interface{}{
		"addr":        server.Addr(),
		"environment": cfg.Server.Environment,
		"version":     version,
	}).Info("SeaNotes API started")

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Shutdown finished with errors")
		return err
	}
	log.Info("SeaNotes API stopped")
	return nil
}
