package commands

import (
	"database/sql"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/evalanche/ai/provider"
	"github.com/teranos/evalanche/ai/tracker"
	"github.com/teranos/evalanche/am"
	"github.com/teranos/evalanche/db"
	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/logger"
	"github.com/teranos/evalanche/pipeline"
	"github.com/teranos/evalanche/routines"
	"github.com/teranos/evalanche/routines/prompt"
	"github.com/teranos/evalanche/session"
)

// workspace is everything a command needs to work against the configured
// database
type workspace struct {
	cfg      *am.Config
	meta     *sql.DB // run records and model usage
	data     *sql.DB // analytical session, routines registered
	session  *session.Session
	routines *routines.Registry
	tracker  *tracker.UsageTracker
	store    *pipeline.Store
	logger   *zap.SugaredLogger
}

// openWorkspace loads the configuration and opens the database twice: once
// migrated for bookkeeping, and once with attachments and routines for the
// session. Routines must be registered before the session pool opens, and
// prompt routines need the usage tracker, which needs the database.
func openWorkspace(cmd *cobra.Command) (*workspace, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.Logger
	path := cfg.GetDatabasePath()

	meta, err := db.OpenWithMigrations(path, db.Options{}, log)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}

	ws := &workspace{
		cfg:      cfg,
		meta:     meta,
		routines: routines.NewRegistry(),
		tracker:  tracker.NewUsageTracker(meta),
		store:    pipeline.NewStore(meta),
		logger:   log,
	}

	if err := routines.RegisterBuiltins(ws.routines); err != nil {
		ws.Close()
		return nil, err
	}
	if err := prompt.Register(ws.routines, cfg, ws.clientConfig("routine")); err != nil {
		ws.Close()
		return nil, err
	}

	data, err := db.OpenWithOptions(path, db.Options{
		Attach:    cfg.Database.Attach,
		Functions: ws.routines,
	}, log)
	if err != nil {
		ws.Close()
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}
	ws.data = data

	pc := cfg.GetPipelineConfig()
	ws.session = session.New(data, session.Options{
		Catalog:   cfg.GetCatalog(),
		BatchSize: pc.BatchSize,
		Routines:  ws.routines,
		Logger:    log,
	})
	return ws, nil
}

// clientConfig returns the LLM client settings shared by routines and metrics
func (ws *workspace) clientConfig(operation string) provider.ClientConfig {
	return provider.ClientConfig{
		Tracker:       ws.tracker,
		Logger:        ws.logger,
		OperationType: operation,
	}
}

// Close closes both database handles
func (ws *workspace) Close() {
	if ws.data != nil {
		ws.data.Close()
	}
	if ws.meta != nil {
		ws.meta.Close()
	}
}
