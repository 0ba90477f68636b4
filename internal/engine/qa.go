package engine

// qa.go - data quality audit of the canonical schema

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"

	"github.com/leapstack-labs/nflpipe/pkg/adapter"
)

// CheckStatus is the verdict of a QA check.
type CheckStatus string

// Check verdicts. A check that cannot run is reported as not available
// instead of receiving a verdict.
const (
	CheckPass CheckStatus = "PASS"
	CheckWarn CheckStatus = "WARN"
)

// Check identifiers.
const (
	CheckGIDUniqueness   = "gid_uniqueness"
	CheckPIDUniqueness   = "pid_uniqueness"
	CheckSeasonCoverage  = "season_coverage"
	CheckHighMissingness = "high_missingness_tables"
	CheckSanity          = "sanity_checks"
	CheckJoinIntegrity   = "join_integrity"
)

func verdict(ok bool) CheckStatus {
	if ok {
		return CheckPass
	}
	return CheckWarn
}

// QAConfig holds audit thresholds.
type QAConfig struct {
	// MissingnessThreshold flags tables whose null percentage exceeds it.
	MissingnessThreshold float64
	// YardLimit flags plays gaining or losing more than this many yards.
	YardLimit int64
	// AllowOvertime accepts a fifth quarter.
	AllowOvertime bool
	// JoinMinPct is the lowest acceptable share of records that resolve to a play.
	JoinMinPct float64
	// JoinTables are staged tables whose pid must resolve to a play.
	JoinTables []string
	// CoverageTables are inspected for season coverage.
	CoverageTables []string
	// SeasonColumn names the season column of the coverage tables.
	SeasonColumn string
}

func (c QAConfig) withDefaults() QAConfig {
	if c.MissingnessThreshold <= 0 {
		c.MissingnessThreshold = 10
	}
	if c.YardLimit <= 0 {
		c.YardLimit = 100
	}
	if c.JoinMinPct <= 0 {
		c.JoinMinPct = 95
	}
	if len(c.JoinTables) == 0 {
		c.JoinTables = []string{"PASS", "RUSH", "SACK", "INTERCPT", "FUMBLE"}
	}
	if c.SeasonColumn == "" {
		c.SeasonColumn = DefaultSeasonColumn
	}
	if len(c.CoverageTables) == 0 {
		c.CoverageTables = []string{"games", "plays", "drives", "offense_stats", "defense_stats"}
	}
	return c
}

// GIDUniqueness compares total and distinct game ids.
type GIDUniqueness struct {
	TotalGames int64       `json:"total_games"`
	UniqueGIDs int64       `json:"unique_gids"`
	Status     CheckStatus `json:"status"`
}

// PIDUniqueness compares total plays with distinct (gid, pid) pairs.
type PIDUniqueness struct {
	TotalPlays    int64       `json:"total_plays"`
	UniquePlayIDs int64       `json:"unique_play_ids"`
	UniqueGames   int64       `json:"unique_games"`
	Status        CheckStatus `json:"status"`
}

// SeasonCoverage is the season span of one table.
type SeasonCoverage struct {
	MinSeason  int64 `json:"min_season"`
	MaxSeason  int64 `json:"max_season"`
	NumSeasons int64 `json:"num_seasons"`
}

// HighMissingness lists tables above the missingness threshold.
type HighMissingness struct {
	Threshold float64            `json:"threshold"`
	Tables    map[string]float64 `json:"tables"`
	Status    CheckStatus        `json:"status"`
}

// YardsCheck counts implausible yardage values.
type YardsCheck struct {
	TotalPlaysWithYds int64       `json:"total_plays_with_yds"`
	SuspiciousYards   int64       `json:"suspicious_yards"`
	Limit             int64       `json:"limit"`
	Status            CheckStatus `json:"status"`
}

// QuartersCheck validates the quarter range.
type QuartersCheck struct {
	UniqueQuarters int64       `json:"unique_quarters"`
	MinQtr         int64       `json:"min_qtr"`
	MaxQtr         int64       `json:"max_qtr"`
	Status         CheckStatus `json:"status"`
}

// PlayTypeCount is one entry of the play type distribution.
type PlayTypeCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// SanityChecks groups value-range checks on plays.
type SanityChecks struct {
	Yards     *YardsCheck     `json:"yards,omitempty"`
	Quarters  *QuartersCheck  `json:"quarters,omitempty"`
	PlayTypes []PlayTypeCount `json:"play_types,omitempty"`
}

// JoinIntegrity reports how many records of a table resolve to a play.
type JoinIntegrity struct {
	Records         int64       `json:"records"`
	MatchedToPlays  int64       `json:"matched_to_plays"`
	MatchPercentage float64     `json:"match_percentage"`
	Status          CheckStatus `json:"status"`
}

// QAReport holds every check result. Checks whose prerequisites were missing
// appear only in Unavailable.
type QAReport struct {
	GIDUniqueness  *GIDUniqueness            `json:"gid_uniqueness,omitempty"`
	PIDUniqueness  *PIDUniqueness            `json:"pid_uniqueness,omitempty"`
	SeasonCoverage map[string]SeasonCoverage `json:"season_coverage,omitempty"`
	HighMissing    *HighMissingness          `json:"high_missingness_tables,omitempty"`
	Sanity         *SanityChecks             `json:"sanity_checks,omitempty"`
	JoinIntegrity  map[string]JoinIntegrity  `json:"join_integrity,omitempty"`
	Unavailable    map[string]string         `json:"not_available,omitempty"`
}

// Finding is a flattened check result.
type Finding struct {
	Check   string
	Subject string
	Status  CheckStatus
	Detail  string
}

// Findings flattens the report into one entry per verdict, in check order.
func (r *QAReport) Findings() []Finding {
	var out []Finding
	if g := r.GIDUniqueness; g != nil {
		out = append(out, Finding{CheckGIDUniqueness, "games", g.Status,
			fmt.Sprintf("total=%d unique=%d", g.TotalGames, g.UniqueGIDs)})
	}
	if p := r.PIDUniqueness; p != nil {
		out = append(out, Finding{CheckPIDUniqueness, "plays", p.Status,
			fmt.Sprintf("total=%d unique=%d games=%d", p.TotalPlays, p.UniquePlayIDs, p.UniqueGames)})
	}
	for _, t := range sortedKeys(r.SeasonCoverage) {
		c := r.SeasonCoverage[t]
		out = append(out, Finding{CheckSeasonCoverage, t, CheckPass,
			fmt.Sprintf("%d-%d (%d seasons)", c.MinSeason, c.MaxSeason, c.NumSeasons)})
	}
	if h := r.HighMissing; h != nil {
		out = append(out, Finding{CheckHighMissingness, "all", h.Status,
			fmt.Sprintf("%d tables above %.0f%%", len(h.Tables), h.Threshold)})
	}
	if s := r.Sanity; s != nil {
		if s.Yards != nil {
			out = append(out, Finding{CheckSanity, "yards", s.Yards.Status,
				fmt.Sprintf("%d suspicious of %d", s.Yards.SuspiciousYards, s.Yards.TotalPlaysWithYds)})
		}
		if s.Quarters != nil {
			out = append(out, Finding{CheckSanity, "quarters", s.Quarters.Status,
				fmt.Sprintf("min=%d max=%d", s.Quarters.MinQtr, s.Quarters.MaxQtr)})
		}
	}
	for _, t := range sortedKeys(r.JoinIntegrity) {
		j := r.JoinIntegrity[t]
		out = append(out, Finding{CheckJoinIntegrity, t, j.Status,
			fmt.Sprintf("%d of %d matched (%.2f%%)", j.MatchedToPlays, j.Records, j.MatchPercentage)})
	}
	return out
}

// Warnings counts findings with a WARN verdict.
func (r *QAReport) Warnings() int {
	n := 0
	for _, f := range r.Findings() {
		if f.Status == CheckWarn {
			n++
		}
	}
	return n
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// auditor runs checks against one database.
type auditor struct {
	db     adapter.Adapter
	cfg    QAConfig
	logger *slog.Logger
	report *QAReport
	meta   map[string]*adapter.Metadata
}

// Audit runs every QA check. Checks never fail the audit: a check whose
// table or columns are missing, or whose query errors, is recorded as not
// available with the reason.
func Audit(ctx context.Context, db adapter.Adapter, dict DataDictionary, cfg QAConfig, logger *slog.Logger) *QAReport {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &auditor{
		db:     db,
		cfg:    cfg.withDefaults(),
		logger: logger,
		report: &QAReport{Unavailable: make(map[string]string)},
		meta:   make(map[string]*adapter.Metadata),
	}

	a.gidUniqueness(ctx)
	a.pidUniqueness(ctx)
	a.seasonCoverage(ctx)
	a.highMissingness(dict)
	a.sanity(ctx)
	a.joinIntegrity(ctx)

	return a.report
}

func (a *auditor) unavailable(check, reason string) {
	a.report.Unavailable[check] = reason
	a.logger.Warn("qa check not available", "check", check, "reason", reason)
}

// require returns an empty reason when table exists with every column.
func (a *auditor) require(ctx context.Context, table string, cols ...string) string {
	m, ok := a.meta[table]
	if !ok {
		exists, err := a.db.TableExists(ctx, table)
		if err != nil {
			return err.Error()
		}
		if exists {
			m, err = a.db.GetTableMetadata(ctx, table)
			if err != nil {
				return err.Error()
			}
		}
		a.meta[table] = m
	}
	if m == nil {
		return fmt.Sprintf("table %s not available", table)
	}
	for _, c := range cols {
		if !m.HasColumn(c) {
			return fmt.Sprintf("column %s.%s not available", table, c)
		}
	}
	return ""
}

func (a *auditor) queryRow(ctx context.Context, query string, dest ...any) error {
	rows, err := a.db.Query(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	if err := rows.Scan(dest...); err != nil {
		return err
	}
	return rows.Err()
}

func (a *auditor) gidUniqueness(ctx context.Context) {
	if reason := a.require(ctx, "games", "gid"); reason != "" {
		a.unavailable(CheckGIDUniqueness, reason)
		return
	}
	r := &GIDUniqueness{}
	if err := a.queryRow(ctx, `SELECT COUNT(*), COUNT(DISTINCT gid) FROM games`, &r.TotalGames, &r.UniqueGIDs); err != nil {
		a.unavailable(CheckGIDUniqueness, err.Error())
		return
	}
	r.Status = verdict(r.TotalGames == r.UniqueGIDs)
	a.report.GIDUniqueness = r
	a.logger.Info("gid uniqueness", "unique", r.UniqueGIDs, "total", r.TotalGames, "status", r.Status)
}

func (a *auditor) pidUniqueness(ctx context.Context) {
	if reason := a.require(ctx, "plays", "gid", "pid"); reason != "" {
		a.unavailable(CheckPIDUniqueness, reason)
		return
	}
	r := &PIDUniqueness{}
	err := a.queryRow(ctx, `SELECT COUNT(*), COUNT(DISTINCT (gid, pid)), COUNT(DISTINCT gid) FROM plays`,
		&r.TotalPlays, &r.UniquePlayIDs, &r.UniqueGames)
	if err != nil {
		a.unavailable(CheckPIDUniqueness, err.Error())
		return
	}
	r.Status = verdict(r.TotalPlays == r.UniquePlayIDs)
	a.report.PIDUniqueness = r
	a.logger.Info("pid uniqueness", "unique", r.UniquePlayIDs, "total", r.TotalPlays, "status", r.Status)
}

func (a *auditor) seasonCoverage(ctx context.Context) {
	col := adapter.QuoteIdent(a.cfg.SeasonColumn)
	coverage := make(map[string]SeasonCoverage)
	for _, table := range a.cfg.CoverageTables {
		if a.require(ctx, table, a.cfg.SeasonColumn) != "" {
			continue
		}
		var minS, maxS sql.NullInt64
		var n int64
		err := a.queryRow(ctx, fmt.Sprintf(
			`SELECT MIN(TRY_CAST(%[1]s AS BIGINT)), MAX(TRY_CAST(%[1]s AS BIGINT)), COUNT(DISTINCT %[1]s) FROM %[2]s WHERE %[1]s IS NOT NULL`,
			col, adapter.QuoteIdent(table)), &minS, &maxS, &n)
		if err != nil {
			a.logger.Warn("season coverage query failed", "table", table, "error", err)
			continue
		}
		if !minS.Valid {
			continue
		}
		coverage[table] = SeasonCoverage{MinSeason: minS.Int64, MaxSeason: maxS.Int64, NumSeasons: n}
	}
	if len(coverage) == 0 {
		a.unavailable(CheckSeasonCoverage, "no table with season values")
		return
	}
	a.report.SeasonCoverage = coverage
	a.logger.Info("season coverage", "tables", len(coverage))
}

func (a *auditor) highMissingness(dict DataDictionary) {
	if len(dict) == 0 {
		a.unavailable(CheckHighMissingness, "data dictionary is empty")
		return
	}
	r := &HighMissingness{Threshold: a.cfg.MissingnessThreshold, Tables: make(map[string]float64)}
	for name, p := range dict {
		if p.MissingPercentage > a.cfg.MissingnessThreshold {
			r.Tables[name] = p.MissingPercentage
		}
	}
	r.Status = verdict(len(r.Tables) == 0)
	a.report.HighMissing = r
	a.logger.Info("missingness", "tables_above_threshold", len(r.Tables), "status", r.Status)
}

func (a *auditor) sanity(ctx context.Context) {
	if reason := a.require(ctx, "plays"); reason != "" {
		a.unavailable(CheckSanity, reason)
		return
	}
	s := &SanityChecks{}

	if reason := a.require(ctx, "plays", "yds"); reason != "" {
		a.unavailable(CheckSanity+".yards", reason)
	} else {
		y := &YardsCheck{Limit: a.cfg.YardLimit}
		var suspicious sql.NullInt64
		err := a.queryRow(ctx, fmt.Sprintf(`
			SELECT COUNT(*), SUM(CASE WHEN yds < %d OR yds > %d THEN 1 ELSE 0 END)
			FROM plays WHERE yds IS NOT NULL`, -a.cfg.YardLimit, a.cfg.YardLimit),
			&y.TotalPlaysWithYds, &suspicious)
		if err != nil {
			a.unavailable(CheckSanity+".yards", err.Error())
		} else {
			y.SuspiciousYards = suspicious.Int64
			y.Status = verdict(y.SuspiciousYards == 0)
			s.Yards = y
		}
	}

	if reason := a.require(ctx, "plays", "qtr"); reason != "" {
		a.unavailable(CheckSanity+".quarters", reason)
	} else {
		q := &QuartersCheck{}
		var minQ, maxQ sql.NullInt64
		err := a.queryRow(ctx, `
			SELECT COUNT(DISTINCT qtr), MIN(TRY_CAST(qtr AS BIGINT)), MAX(TRY_CAST(qtr AS BIGINT))
			FROM plays WHERE qtr IS NOT NULL`, &q.UniqueQuarters, &minQ, &maxQ)
		if err != nil {
			a.unavailable(CheckSanity+".quarters", err.Error())
		} else {
			limit := int64(4)
			if a.cfg.AllowOvertime {
				limit = 5
			}
			q.MinQtr, q.MaxQtr = minQ.Int64, maxQ.Int64
			q.Status = verdict(!maxQ.Valid || (q.MaxQtr <= limit && q.MinQtr >= 1))
			s.Quarters = q
		}
	}

	if reason := a.require(ctx, "plays", "type"); reason != "" {
		a.unavailable(CheckSanity+".play_types", reason)
	} else {
		types, err := a.playTypes(ctx)
		if err != nil {
			a.unavailable(CheckSanity+".play_types", err.Error())
		} else {
			s.PlayTypes = types
		}
	}

	a.report.Sanity = s
	attrs := []any{"play_types", len(s.PlayTypes)}
	if s.Yards != nil {
		attrs = append(attrs, "yards", s.Yards.Status)
	}
	if s.Quarters != nil {
		attrs = append(attrs, "quarters", s.Quarters.Status)
	}
	a.logger.Info("sanity checks", attrs...)
}

func (a *auditor) playTypes(ctx context.Context) ([]PlayTypeCount, error) {
	rows, err := a.db.Query(ctx, `
		SELECT CAST("type" AS VARCHAR) AS t, COUNT(*) AS n
		FROM plays WHERE "type" IS NOT NULL
		GROUP BY 1 ORDER BY n DESC, t`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []PlayTypeCount
	for rows.Next() {
		var pt PlayTypeCount
		if err := rows.Scan(&pt.Type, &pt.Count); err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

func (a *auditor) joinIntegrity(ctx context.Context) {
	if reason := a.require(ctx, "plays", "pid"); reason != "" {
		a.unavailable(CheckJoinIntegrity, reason)
		return
	}

	results := make(map[string]JoinIntegrity)
	for _, table := range a.cfg.JoinTables {
		key := CheckJoinIntegrity + "." + table
		if reason := a.require(ctx, table, "pid"); reason != "" {
			a.unavailable(key, reason)
			continue
		}

		var j JoinIntegrity
		// Matching against distinct pids keeps duplicated plays from inflating the match count.
		err := a.queryRow(ctx, fmt.Sprintf(`
			SELECT COUNT(*), COUNT(m.pid)
			FROM %s s
			LEFT JOIN (SELECT DISTINCT pid FROM plays) m ON s.pid = m.pid`, adapter.QuoteIdent(table)),
			&j.Records, &j.MatchedToPlays)
		if err != nil {
			a.unavailable(key, err.Error())
			continue
		}
		if j.Records == 0 {
			a.unavailable(key, fmt.Sprintf("table %s has no records", table))
			continue
		}
		j.MatchPercentage = round2(100 * float64(j.MatchedToPlays) / float64(j.Records))
		j.Status = verdict(j.MatchPercentage >= a.cfg.JoinMinPct)
		results[table] = j
		a.logger.Info("join integrity", "table", table, "match_pct", j.MatchPercentage, "status", j.Status)
	}

	if len(results) > 0 {
		a.report.JoinIntegrity = results
	}
}

// Audit runs the QA checks against the engine's database.
func (e *Engine) Audit(ctx context.Context, dict DataDictionary) (*QAReport, error) {
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}
	e.logger.Info("running data quality checks")
	report := Audit(ctx, e.db, dict, e.cfg.QA, e.logger)
	e.recordFindings(report)
	return report, nil
}
