package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"documedix/api/internal/docapi"
	"documedix/api/internal/payload"
)

var listFormat string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents",
	Long: `List the documents stored in the document backend, newest first.

Examples:
  documedix list
  documedix list --format json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listFormat, "format", "text", "Output format: text or json")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	client := docapi.NewClient(cfg.DocAPI.URL, cfg.DocAPI.Timeout)
	docs, err := client.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	summaries := make([]payload.Summary, 0, len(docs))
	for _, d := range docs {
		summaries = append(summaries, payload.Summarize(d))
	}

	out := cmd.OutOrStdout()
	if listFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No documents.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSECTIONS\tGRADE\tUPDATED")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", s.ID, s.Title, s.Sections, s.DocGrade, s.Datetime)
	}
	return tw.Flush()
}
