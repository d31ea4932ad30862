package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/gri-cli/internal/model"
	"github.com/sells-group/gri-cli/internal/template"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Work with disclosure templates",
}

var templateInspectCmd = &cobra.Command{
	Use:   "inspect [path]",
	Short: "Load a template and print field counts without calling a model",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Template.Path
		if len(args) == 1 {
			path = args[0]
		}
		sheet, _ := cmd.Flags().GetString("sheet")
		if sheet == "" {
			sheet = cfg.Template.Sheet
		}

		c := cfg.Template.Columns
		ts, err := template.Load(cmd.Context(), path, template.Options{
			Columns: template.Columns{
				RefNo:            c.RefNo,
				Topic:            c.Topic,
				DisclosureSource: c.DisclosureSource,
				DataField:        c.DataField,
				Type:             c.DataType,
			},
			Sheet: sheet,
		})
		if err != nil {
			return err
		}

		formatTemplateSummary(os.Stdout, path, ts)
		return nil
	},
}

func init() {
	templateInspectCmd.Flags().String("sheet", "", "xlsx sheet name (default: first sheet)")
	templateCmd.AddCommand(templateInspectCmd)
	rootCmd.AddCommand(templateCmd)
}

type topicCount struct {
	Topic     string
	Narrative int
	Metric    int
}

func countByTopic(recs []*model.DisclosureRecord) []topicCount {
	idx := make(map[string]int)
	var out []topicCount
	for _, r := range recs {
		i, ok := idx[r.Topic]
		if !ok {
			i = len(out)
			idx[r.Topic] = i
			out = append(out, topicCount{Topic: r.Topic})
		}
		if r.DataType == model.DataTypeNarrative {
			out[i].Narrative++
		} else {
			out[i].Metric++
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Topic < out[b].Topic })
	return out
}

// formatTemplateSummary writes template counts by type and topic to w.
func formatTemplateSummary(out io.Writer, path string, ts *template.Store) {
	c := ts.Counts()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Template:\t%s\n", path)
	_, _ = fmt.Fprintf(w, "Fields:\t%d\n", c.Total)
	_, _ = fmt.Fprintf(w, "  Narrative:\t%d\n", c.Narrative)
	_, _ = fmt.Fprintf(w, "  Metric:\t%d\n", c.Metric)
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, "TOPIC\tNARRATIVE\tMETRIC")
	_, _ = fmt.Fprintln(w, "-----\t---------\t------")
	for _, tc := range countByTopic(ts.Records()) {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\n", tc.Topic, tc.Narrative, tc.Metric)
	}

	if dups := ts.Duplicates(); len(dups) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintf(w, "Duplicate rows (last one kept):\t%d\n", len(dups))
		for _, k := range dups {
			_, _ = fmt.Fprintf(w, "  %s\n", k.String())
		}
	}
	_ = w.Flush()
}
