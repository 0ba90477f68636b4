// Package catalog is the single list of canonical table definitions.
//
// Both the offline ingestion pipeline and the runtime materializer derive
// canonical tables from this list, so the two can never disagree about what
// "games" or "passes" means.
package catalog

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/nflpipe/internal/dag"
	"github.com/leapstack-labs/nflpipe/pkg/adapter"
)

// Kind classifies how a canonical table relates to its sources.
type Kind string

// Definition kinds.
const (
	KindDerived     Kind = "derived"
	KindPassthrough Kind = "passthrough"
)

// Definition describes one canonical table.
type Definition struct {
	// Name of the canonical table.
	Name string
	Kind Kind
	// Sources are the staged (raw) tables the SQL reads.
	Sources []string
	// DependsOn are canonical tables the SQL reads.
	DependsOn []string
	// SQL is the SELECT producing the table.
	SQL string
}

// CreateSQL returns the statement that materializes the definition.
func (d Definition) CreateSQL() string {
	return d.CreateSQLAs(d.Name)
}

// CreateSQLAs returns the statement that materializes the definition under table.
func (d Definition) CreateSQLAs(table string) string {
	return fmt.Sprintf("CREATE TABLE %s AS %s", adapter.QuoteIdent(table), d.SQL)
}

func project(table string, cols ...string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = adapter.QuoteIdent(c)
	}
	return "SELECT " + strings.Join(quoted, ", ") + " FROM " + adapter.QuoteIdent(table)
}

func passthrough(name, source string, cols ...string) Definition {
	sql := "SELECT * FROM " + adapter.QuoteIdent(source)
	if len(cols) > 0 {
		sql = project(source, cols...)
	}
	return Definition{Name: name, Kind: KindPassthrough, Sources: []string{source}, SQL: sql}
}

var definitions = []Definition{
	{
		Name:    "games",
		Kind:    KindDerived,
		Sources: []string{"GAME", "SCHEDULE"},
		SQL: `SELECT g.gid, g.seas, g.wk, g.day, s.date, g.v, g.h, g.stad, g.temp, g.humd,
       g.wspd, g.wdir, g.cond, g.surf, g.ou, g.sprv, g.ptsv, g.ptsh
FROM "GAME" g
LEFT JOIN "SCHEDULE" s ON g.gid = s.gid`,
	},
	{
		Name:    "plays",
		Kind:    KindDerived,
		Sources: []string{"PBP"},
		SQL: project("PBP",
			"gid", "pid", "detail", "off", "def", "type", "dseq", "len", "qtr", "min", "sec",
			"ptso", "ptsd", "timo", "timd", "dwn", "ytg", "yfog", "zone", "yds", "succ", "fd",
			"sg", "nh", "pts", "bc", "kne", "dir", "psr", "comp", "spk", "loc", "trg", "dfb",
			"eps", "epa"),
	},
	{
		Name:    "drives",
		Kind:    KindDerived,
		Sources: []string{"DRIVE"},
		SQL: project("DRIVE",
			"uid", "gid", "fpid", "tname", "drvn", "obt", "qtr", "min", "sec", "yfog", "plays",
			"succ", "rfd", "pfd", "ofd", "ry", "ra", "py", "pa", "pc", "peyf", "peya", "net", "res"),
	},
	{
		Name:      "passes",
		Kind:      KindDerived,
		Sources:   []string{"PASS"},
		DependsOn: []string{"plays"},
		SQL: `SELECT p.pid, p.psr, p.trg, p.loc, p.yds, p.comp, p.succ, p.spk, p.dfb,
       pl.gid, pl.off, pl.def, pl.qtr, pl.min, pl.sec, pl.pts
FROM "PASS" p
LEFT JOIN "plays" pl ON p.pid = pl.pid`,
	},
	{
		Name:      "rushes",
		Kind:      KindDerived,
		Sources:   []string{"RUSH"},
		DependsOn: []string{"plays"},
		SQL: `SELECT r.pid, r.bc, r.dir, r.yds, r.succ, r.kne,
       pl.gid, pl.off, pl.def, pl.qtr, pl.min, pl.sec, pl.pts
FROM "RUSH" r
LEFT JOIN "plays" pl ON r.pid = pl.pid`,
	},
	passthrough("penalties", "PENALTY", "uid", "pid", "ptm", "pen", "desc", "cat", "pey", "act"),
	passthrough("sacks", "SACK", "uid", "pid", "qb", "sk", "value", "ydsl"),
	passthrough("tackles", "TACKLE", "uid", "pid", "tck", "value"),
	passthrough("players", "PLAYER"),
	passthrough("offense_stats", "OFFENSE"),
	passthrough("defense_stats", "DEFENSE"),
	passthrough("injuries", "INJURY"),
	passthrough("snaps", "SNAP"),
	passthrough("redzone", "REDZONE"),
	passthrough("fgxp", "FGXP"),
	passthrough("touchdowns", "TD"),
	passthrough("fumbles", "FUMBLE"),
	passthrough("interceptions", "INTERCPT"),
	passthrough("kickoffs", "KOFF"),
	passthrough("punts", "PUNT"),
	passthrough("blocks", "BLOCK"),
	passthrough("conversions", "CONV"),
	passthrough("safeties", "SAFETY"),
}

// Definitions returns a copy of every canonical definition in declaration order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Names returns the canonical table names in declaration order.
func Names() []string {
	names := make([]string, len(definitions))
	for i, d := range definitions {
		names[i] = d.Name
	}
	return names
}

// Lookup finds a definition by canonical name.
func Lookup(name string) (Definition, bool) {
	for _, d := range definitions {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}

// IsCanonical reports whether name is a canonical table.
func IsCanonical(name string) bool {
	_, ok := Lookup(name)
	return ok
}

// Graph builds the dependency graph of the given definitions. Dependencies on
// canonical tables outside the set are an error.
func Graph(defs []Definition) (*dag.Graph[Definition], error) {
	g := dag.NewGraph[Definition]()
	for _, d := range defs {
		g.AddNode(d.Name, d)
	}
	for _, d := range defs {
		for _, dep := range d.DependsOn {
			if err := g.AddEdge(dep, d.Name); err != nil {
				return nil, fmt.Errorf("definition %s: %w", d.Name, err)
			}
		}
	}
	if hasCycle, path := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("canonical definitions form a cycle: %v", path)
	}
	return g, nil
}
