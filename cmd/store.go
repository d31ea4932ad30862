package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gri-cli/internal/config"
	"github.com/sells-group/gri-cli/internal/extract"
	"github.com/sells-group/gri-cli/internal/pipeline"
	"github.com/sells-group/gri-cli/internal/store"
)

// initStore opens and migrates the run ledger. It returns nil when no driver
// is configured.
func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch sc.Driver {
	case "":
		return nil, nil
	case "sqlite":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "gri.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, sc.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// requireStore opens the ledger for commands that cannot run without it.
func requireStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("ledger"); err != nil {
		return nil, err
	}
	return initStore(ctx, cfg.Store)
}

// pipelineEnv bundles a pipeline with the ledger it writes to.
type pipelineEnv struct {
	Pipeline *pipeline.Pipeline
	Store    store.Store
}

// Close releases the ledger.
func (e *pipelineEnv) Close() {
	if e.Store != nil {
		e.Store.Close() //nolint:errcheck
	}
}

func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}

	factory := func(ctx context.Context, provider string) (extract.Client, error) {
		return extract.NewFromConfig(ctx, cfg, provider)
	}
	return &pipelineEnv{
		Pipeline: pipeline.New(cfg, st, factory),
		Store:    st,
	}, nil
}
