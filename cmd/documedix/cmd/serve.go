package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"documedix/api/internal/app"
	"documedix/api/internal/assist"
	"documedix/api/internal/config"
	"documedix/api/internal/docapi"
	"documedix/api/internal/export"
	"documedix/api/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the editing API",
	Long: `Start the HTTP API that holds editing sessions, saves and loads
documents through the document backend, talks to the writing assistant and
exports documents.

Sessions are autosaved to Redis when redis.url is set.

Example:
  documedix serve --config ./config/documedix.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func newExporter(cfg config.Config, logger *slog.Logger) *export.Service {
	return export.NewService(export.Options{
		ImageHeight:  cfg.Export.ImageHeight,
		ImageWorkers: cfg.Export.ImageWorkers,
		Converter:    cfg.Export.DOCXConverter,
		PDF:          export.PDFRenderer{ExecPath: cfg.Export.ChromePath, Timeout: cfg.Export.PDFTimeout},
	}, logger)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	logger := slog.Default()

	deps := app.Deps{
		Backend:  docapi.NewClient(cfg.DocAPI.URL, cfg.DocAPI.Timeout),
		Assist:   assist.NewClient(cfg.Assist.URL, cfg.Assist.Timeout),
		Exporter: newExporter(cfg, logger),
	}
	if strings.TrimSpace(cfg.Redis.URL) != "" {
		drafts, err := session.NewRedisStore(ctx, cfg.Redis.URL, cfg.Redis.DraftTTL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer drafts.Close()
		deps.Drafts = drafts
		logger.Info("autosaving sessions to redis")
	} else {
		logger.Warn("redis.url not set, sessions are kept in memory only")
	}

	service := app.NewService(cfg, deps, logger)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	if err := serveUntilDone(ctx, server, cfg.Shutdown, logger, "documedix api"); err != nil {
		return err
	}
	service.Wait()
	return nil
}

// serveUntilDone runs server until ctx is cancelled, then shuts it down.
func serveUntilDone(ctx context.Context, server *http.Server, timeout time.Duration, logger *slog.Logger, name string) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(name+" listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
		return err
	}
	logger.Info(name + " stopped")
	return nil
}
