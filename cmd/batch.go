package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/gri-cli/internal/pipeline"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Extract disclosures from many reports concurrently",
	Long:  "Runs one extraction per document, either from a YAML manifest (--manifest) or from a glob of documents sharing one template (--glob).",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		manifest, _ := cmd.Flags().GetString("manifest")
		glob, _ := cmd.Flags().GetString("glob")
		tpl, _ := cmd.Flags().GetString("template")
		outDir, _ := cmd.Flags().GetString("output-dir")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		var (
			jobs []pipeline.Job
			err  error
		)
		switch {
		case manifest != "" && glob != "":
			return eris.New("batch: use either --manifest or --glob, not both")
		case manifest != "":
			jobs, err = pipeline.LoadManifest(manifest)
		case glob != "":
			if tpl == "" {
				tpl = cfg.Template.Path
			}
			jobs, err = pipeline.GlobJobs(glob, tpl, outDir)
		default:
			return eris.New("batch: --manifest or --glob is required")
		}
		if err != nil {
			return err
		}

		if concurrency > 0 {
			cfg.Batch.MaxConcurrentDocuments = concurrency
		}
		env, err := initPipeline(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		res := env.Pipeline.RunBatch(ctx, jobs, cfg.Batch.MaxConcurrentDocuments)
		formatBatchResult(os.Stdout, res)
		if res.Failed > 0 {
			return eris.Errorf("batch: %d of %d jobs failed", res.Failed, len(jobs))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().String("manifest", "", "YAML manifest listing jobs")
	batchCmd.Flags().String("glob", "", "document glob, ** supported (e.g. reports/**/*.docx)")
	batchCmd.Flags().String("template", "", "template shared by --glob jobs (default from config)")
	batchCmd.Flags().String("output-dir", "output", "directory for --glob reports")
	batchCmd.Flags().Int("concurrency", 0, "max documents in flight (default from config)")
	rootCmd.AddCommand(batchCmd)
}

// formatBatchResult writes one line per job to w.
func formatBatchResult(out io.Writer, res *pipeline.BatchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DOCUMENT\tSTATUS\tPOPULATED\tMISSING\tOUTPUT")
	_, _ = fmt.Fprintln(w, "--------\t------\t---------\t-------\t------")
	for _, jr := range res.Jobs {
		status, populated, missing := "failed", "-", "-"
		if jr.Result != nil {
			status = string(jr.Result.Status)
			if jr.Result.Stats.FieldsTotal > 0 {
				populated = fmt.Sprint(jr.Result.Stats.FieldsPopulated)
				missing = fmt.Sprint(jr.Result.Stats.FieldsMissing)
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", jr.Job.Document, status, populated, missing, jr.Job.Output)
	}
	_, _ = fmt.Fprintf(w, "\nSucceeded: %d  Failed: %d\n", res.Succeeded, res.Failed)
	_ = w.Flush()
}
