package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/gri-cli/internal/model"
	"github.com/sells-group/gri-cli/internal/pipeline"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract GRI disclosures from one sustainability report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		in := runInputFromFlags(cmd)
		if in.Provider != "" {
			cfg.Extraction.Provider = in.Provider
		}

		env, err := initPipeline(ctx, "extract")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Run(ctx, in)
		if res != nil && res.Stats.FieldsTotal > 0 {
			formatRunSummary(os.Stdout, res)
		}
		return err
	},
}

func init() {
	extractCmd.Flags().String("template", "", "template path, .csv or .xlsx (default from config)")
	extractCmd.Flags().String("document", "", "report path, .txt, .md or .docx (default from config)")
	extractCmd.Flags().String("output", "", "report output path (default from config)")
	extractCmd.Flags().String("provider", "", "extraction provider: anthropic or gemini (default from config)")
	rootCmd.AddCommand(extractCmd)
}

func runInputFromFlags(cmd *cobra.Command) model.RunInput {
	tpl, _ := cmd.Flags().GetString("template")
	doc, _ := cmd.Flags().GetString("document")
	out, _ := cmd.Flags().GetString("output")
	provider, _ := cmd.Flags().GetString("provider")
	return model.RunInput{
		TemplatePath: tpl,
		DocumentPath: doc,
		OutputPath:   out,
		Provider:     provider,
	}
}

// formatRunSummary writes the end-of-run counts to w.
func formatRunSummary(out io.Writer, res *pipeline.Result) {
	s := res.Stats
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if res.RunID != "" {
		_, _ = fmt.Fprintf(w, "Run:\t%s\n", res.RunID)
	}
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", res.Status)
	_, _ = fmt.Fprintf(w, "Report:\t%s\n", res.Input.OutputPath)
	_, _ = fmt.Fprintf(w, "Fields:\t%d (%d narrative)\n", s.FieldsTotal, s.FieldsNarrative)
	_, _ = fmt.Fprintf(w, "  Populated:\t%d\n", s.FieldsPopulated)
	_, _ = fmt.Fprintf(w, "  Missing:\t%d\n", s.FieldsMissing)
	if s.Duplicates > 0 {
		_, _ = fmt.Fprintf(w, "  Duplicate rows:\t%d\n", s.Duplicates)
	}
	_, _ = fmt.Fprintf(w, "Chunks:\t%d\n", s.ChunksTotal)
	_, _ = fmt.Fprintf(w, "  Extracted:\t%d\n", s.ChunksProcessed)
	_, _ = fmt.Fprintf(w, "  Skipped:\t%d\n", s.ChunksSkipped)
	_, _ = fmt.Fprintf(w, "  Failed:\t%d\n", s.ChunksFailed)
	_, _ = fmt.Fprintf(w, "Merged:\t%d\n", s.Merged)
	_, _ = fmt.Fprintf(w, "Rejected:\t%d\n", s.Rejected)
	_, _ = fmt.Fprintf(w, "Tokens:\t%d in / %d out\n", s.TokenUsage.InputTokens, s.TokenUsage.OutputTokens)
	_, _ = fmt.Fprintf(w, "Est. cost:\t$%.4f\n", s.TokenUsage.Cost)
	_ = w.Flush()
}
