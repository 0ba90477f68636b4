package engine

// canonical.go - canonical schema derivation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/nflpipe/internal/catalog"
	"github.com/leapstack-labs/nflpipe/pkg/adapter"
)

// StatusPresent marks a canonical table that already existed and was kept.
const StatusPresent Status = "present"

// BuildOptions controls BuildCanonical.
type BuildOptions struct {
	// KeepExisting leaves tables that already exist untouched instead of
	// rebuilding them.
	KeepExisting bool
	// OnResult is called after each definition is processed.
	OnResult func(BuildResult)
	Logger   *slog.Logger
}

// BuildCanonical materializes the given definitions in dependency order.
//
// A definition whose staged sources are missing, or whose canonical
// dependencies were not built, is skipped and never partially created.
// A definition whose SQL fails is dropped and reported as failed. The
// returned error is non-nil only when the definitions themselves are
// inconsistent.
func BuildCanonical(ctx context.Context, db adapter.Adapter, defs []catalog.Definition, opts BuildOptions) ([]BuildResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	g, err := catalog.Graph(defs)
	if err != nil {
		return nil, err
	}
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	blocked := make(map[string]string)
	results := make([]BuildResult, 0, len(order))

	for _, name := range order {
		def, _ := g.Get(name)
		res := buildOne(ctx, db, def, blocked[name], opts.KeepExisting)

		switch res.Status {
		case StatusBuilt:
			logger.Info("built canonical table", "table", name, "rows", res.Rows)
		case StatusPresent:
			logger.Debug("canonical table already present", "table", name)
		case StatusSkipped:
			logger.Warn("skipped canonical table", "table", name, "reason", res.Reason)
		default:
			logger.Error("failed to build canonical table", "table", name, "error", res.Reason)
		}

		if res.Status != StatusBuilt && res.Status != StatusPresent {
			for _, child := range g.Downstream(name) {
				if _, ok := blocked[child]; !ok {
					blocked[child] = fmt.Sprintf("depends on %s which was not built", name)
				}
			}
		}

		results = append(results, res)
		if opts.OnResult != nil {
			opts.OnResult(res)
		}
	}

	return results, nil
}

func buildOne(ctx context.Context, db adapter.Adapter, def catalog.Definition, blockedReason string, keepExisting bool) BuildResult {
	res := BuildResult{Table: def.Name, Kind: string(def.Kind)}

	if keepExisting {
		exists, err := db.TableExists(ctx, def.Name)
		if err != nil {
			res.Status, res.Reason = StatusFailed, err.Error()
			return res
		}
		if exists {
			res.Status = StatusPresent
			res.Rows, _ = db.QueryInt64(ctx, "SELECT COUNT(*) FROM "+adapter.QuoteIdent(def.Name))
			return res
		}
	}

	if blockedReason != "" {
		res.Status, res.Reason = StatusSkipped, blockedReason
		return res
	}

	for _, src := range def.Sources {
		exists, err := db.TableExists(ctx, src)
		if err != nil {
			res.Status, res.Reason = StatusFailed, err.Error()
			return res
		}
		if !exists {
			res.Status, res.Reason = StatusSkipped, fmt.Sprintf("source table %s not loaded", src)
			return res
		}
	}

	if err := replaceTable(ctx, db, def); err != nil {
		res.Status, res.Reason = StatusFailed, err.Error()
		return res
	}

	n, err := db.QueryInt64(ctx, "SELECT COUNT(*) FROM "+adapter.QuoteIdent(def.Name))
	if err != nil {
		res.Status, res.Reason = StatusFailed, err.Error()
		return res
	}
	res.Status = StatusBuilt
	res.Rows = n
	return res
}

// buildPrefix names the scratch table a definition is built into.
const buildPrefix = "__nflpipe_build_"

// replaceTable builds def into a scratch table and swaps it in under the
// canonical name. Table names match case-insensitively, so a staged source
// such as REDZONE is replaced by its canonical table redzone only after the
// new table holds its rows. On failure the existing table is left alone.
func replaceTable(ctx context.Context, db adapter.Adapter, def catalog.Definition) error {
	scratch := adapter.QuoteIdent(buildPrefix + def.Name)
	dropScratch := "DROP TABLE IF EXISTS " + scratch

	if err := db.Exec(ctx, dropScratch); err != nil {
		return err
	}
	if err := db.Exec(ctx, def.CreateSQLAs(buildPrefix+def.Name)); err != nil {
		_ = db.Exec(ctx, dropScratch)
		return err
	}
	if err := db.Exec(ctx, "DROP TABLE IF EXISTS "+adapter.QuoteIdent(def.Name)); err != nil {
		_ = db.Exec(ctx, dropScratch)
		return err
	}
	if err := db.Exec(ctx, "ALTER TABLE "+scratch+" RENAME TO "+adapter.QuoteIdent(def.Name)); err != nil {
		_ = db.Exec(ctx, dropScratch)
		return fmt.Errorf("failed to rename %s into place: %w", def.Name, err)
	}
	return nil
}

// BuildCanonical derives every canonical table from the staged tables.
func (e *Engine) BuildCanonical(ctx context.Context) ([]BuildResult, error) {
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}

	e.logger.Info("building canonical tables")

	results, err := BuildCanonical(ctx, e.db, catalog.Definitions(), BuildOptions{
		Logger: e.logger,
		OnResult: func(r BuildResult) {
			e.recordEvent(StepBuild, r.Table, r.Status, r.Rows, r.Reason)
		},
	})
	if err != nil {
		return nil, err
	}

	built := 0
	for _, r := range results {
		if r.Status == StatusBuilt {
			built++
		}
	}
	e.logger.Info("canonical build complete", "built", built, "total", len(results))
	return results, nil
}
