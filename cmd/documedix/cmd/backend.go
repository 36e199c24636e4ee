package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"documedix/api/internal/blob"
	"documedix/api/internal/docapi"
	"documedix/api/internal/store"
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Start the reference document backend",
	Long: `Start a document backend that answers save_document, load_document,
get_files and list_documents on a single endpoint. Documents are stored in
Postgres, attachment bytes in MinIO.

Migrations in backend.migrations_dir are applied on start.

Example:
  documedix backend`,
	RunE: runBackend,
}

var backendPath string

func init() {
	rootCmd.AddCommand(backendCmd)
	backendCmd.Flags().StringVar(&backendPath, "path", "/api/docu_api.php", "endpoint path")
}

func runBackend(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	logger := slog.Default()

	db, err := store.Open(ctx, cfg.Backend.DatabaseURL, store.PoolOptions{})
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, os.DirFS(cfg.Backend.MigrationsDir), logger)
	if err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	logger.Info("migrations applied", "count", len(applied))

	files, err := blob.New(blob.Config{
		Endpoint:        cfg.Storage.Endpoint,
		Bucket:          cfg.Storage.Bucket,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		UseSSL:          cfg.Storage.UseSSL,
		PublicBaseURL:   cfg.Storage.PublicBaseURL,
		URLExpiry:       cfg.Storage.URLExpiry,
	})
	if err != nil {
		return fmt.Errorf("object storage: %w", err)
	}
	if err := files.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("object storage bucket: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(backendPath, docapi.NewServer(store.NewPostgresStore(db), files, logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              cfg.Backend.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return serveUntilDone(ctx, server, cfg.Shutdown, logger, "document backend")
}
