package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"documedix/api/internal/attachment"
	"documedix/api/internal/docapi"
	"documedix/api/internal/export"
	"documedix/api/internal/payload"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export [document id]",
	Short: "Export a stored document to a file",
	Long: `Load a document from the document backend and render it as html,
pdf or docx. The file is named after the document category unless --output
is given.

Examples:
  documedix export 12 --format docx
  documedix export 12 --format pdf --output ./out/report.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportFormat, "format", "docx", "Output format: html, pdf or docx")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output path (default: category filename in the current directory)")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}
	if _, err := payload.ParseID(args[0]); err != nil {
		return err
	}

	cfg := GetConfig()
	logger := slog.Default()
	client := docapi.NewClient(cfg.DocAPI.URL, cfg.DocAPI.Timeout)

	rec, err := client.LoadDocument(ctx, args[0])
	if err != nil {
		return fmt.Errorf("load document %s: %w", args[0], err)
	}
	doc, err := payload.FromRecord(rec)
	if err != nil {
		return err
	}
	if files, err := client.GetFiles(ctx, doc.Meta.ID); err != nil {
		logger.Warn("attachment hydration failed", "document_id", doc.Meta.ID, "err", err)
	} else {
		doc = doc.ReplaceAll(attachment.Hydrate(doc.Sections, payload.StoredFiles(files)))
	}

	res, err := newExporter(cfg, logger).Export(ctx, doc, format)
	if err != nil {
		return err
	}
	path := exportOutput
	if path == "" {
		path = res.Filename
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, res.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", path, len(res.Data))
	return nil
}
