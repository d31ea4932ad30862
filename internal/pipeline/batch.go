package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/gri-cli/internal/model"
)

// Job is one template/document pair in a batch.
type Job struct {
	Template string `yaml:"template" json:"template"`
	Document string `yaml:"document" json:"document"`
	Output   string `yaml:"output" json:"output"`
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`
}

// Input converts the job into a run input.
func (j Job) Input() model.RunInput {
	return model.RunInput{
		TemplatePath: j.Template,
		DocumentPath: j.Document,
		OutputPath:   j.Output,
		Provider:     j.Provider,
	}
}

// Manifest lists batch jobs.
type Manifest struct {
	Jobs []Job `yaml:"jobs"`
}

// LoadManifest reads a YAML batch manifest. Every job needs a document and
// an output path; an empty template falls back to configuration at run time.
func LoadManifest(path string) ([]Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read manifest %s", path)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "batch: parse manifest %s", path)
	}
	if len(m.Jobs) == 0 {
		return nil, eris.Errorf("batch: manifest %s has no jobs", path)
	}
	for i, j := range m.Jobs {
		if strings.TrimSpace(j.Document) == "" {
			return nil, eris.Errorf("batch: job %d: document is required", i+1)
		}
		if strings.TrimSpace(j.Output) == "" {
			return nil, eris.Errorf("batch: job %d: output is required", i+1)
		}
	}
	return m.Jobs, nil
}

// GlobJobs expands a doublestar pattern into jobs that share one template.
// Each output is written as <outputDir>/<document stem>.json.
func GlobJobs(pattern, templatePath, outputDir string) ([]Job, error) {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: glob %s", pattern)
	}
	sort.Strings(matches)

	jobs := make([]Job, 0, len(matches))
	seen := make(map[string]string, len(matches))
	for _, m := range matches {
		if info, err := os.Stat(m); err != nil || info.IsDir() {
			continue
		}
		stem := strings.TrimSuffix(filepath.Base(m), filepath.Ext(m))
		out := filepath.Join(outputDir, stem+".json")
		if prev, ok := seen[out]; ok {
			return nil, eris.Errorf("batch: %s and %s both map to %s", prev, m, out)
		}
		seen[out] = m
		jobs = append(jobs, Job{Template: templatePath, Document: m, Output: out})
	}
	if len(jobs) == 0 {
		return nil, eris.Errorf("batch: no documents match %s", pattern)
	}
	return jobs, nil
}

// JobResult pairs a job with its outcome.
type JobResult struct {
	Job    Job     `json:"job"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// BatchResult aggregates a batch.
type BatchResult struct {
	Jobs      []JobResult `json:"jobs"`
	Succeeded int64       `json:"succeeded"`
	Failed    int64       `json:"failed"`
}

// RunBatch runs jobs concurrently, at most concurrency at a time. Each job
// gets its own template store; a failing job does not stop the others.
func (p *Pipeline) RunBatch(ctx context.Context, jobs []Job, concurrency int) *BatchResult {
	if concurrency < 1 {
		concurrency = 1
	}
	zap.L().Info("batch: processing",
		zap.Int("jobs", len(jobs)),
		zap.Int("concurrency", concurrency),
	)

	out := &BatchResult{Jobs: make([]JobResult, len(jobs))}
	var succeeded, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, job := range jobs {
		g.Go(func() error {
			log := zap.L().With(zap.String("document", job.Document))
			jr := JobResult{Job: job}

			res, err := p.Run(gctx, job.Input())
			jr.Result = res
			switch {
			case err != nil:
				failed.Add(1)
				jr.Error = err.Error()
				log.Error("batch: job failed", zap.Error(err))
			case res.Status != model.RunStatusComplete:
				failed.Add(1)
				jr.Error = "run " + string(res.Status)
				log.Warn("batch: job did not complete", zap.String("status", string(res.Status)))
			default:
				succeeded.Add(1)
				log.Info("batch: job complete",
					zap.String("output", job.Output),
					zap.Int("fields_populated", res.Stats.FieldsPopulated),
				)
			}
			out.Jobs[i] = jr
			return nil // don't abort batch on individual failure
		})
	}
	_ = g.Wait()

	out.Succeeded = succeeded.Load()
	out.Failed = failed.Load()
	zap.L().Info("batch: complete",
		zap.Int64("succeeded", out.Succeeded),
		zap.Int64("failed", out.Failed),
	)
	return out
}
