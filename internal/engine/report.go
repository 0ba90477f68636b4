package engine

// report.go - data dictionary and QA report artifacts

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Artifact file names inside the output directory.
const (
	DataDictionaryFile = "data_dictionary.json"
	QAReportFile       = "data_qa_report.txt"
)

// ReportInput is everything the text report renders.
type ReportInput struct {
	GeneratedAt time.Time
	Database    string
	Dictionary  DataDictionary
	QA          *QAReport
	Loads       []LoadResult
	Builds      []BuildResult
}

// ReportResult lists the artifacts written and any that failed.
type ReportResult struct {
	Written []string
	Errors  map[string]error
}

// WriteDataDictionary writes the dictionary as indented JSON with sorted keys.
func WriteDataDictionary(path string, dict DataDictionary) error {
	data, err := json.MarshalIndent(dict, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode data dictionary: %w", err)
	}
	err = replaceFile(path, func(w io.Writer) error {
		_, err := w.Write(append(data, '\n'))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to write data dictionary: %w", err)
	}
	return nil
}

// WriteQAReportFile renders the QA report into path.
func WriteQAReportFile(path string, in ReportInput) error {
	if err := replaceFile(path, func(w io.Writer) error { return WriteQAReport(w, in) }); err != nil {
		return fmt.Errorf("failed to write QA report: %w", err)
	}
	return nil
}

// replaceFile writes path through a sibling temp file and renames it into
// place, so a failed write leaves any previous file untouched.
func replaceFile(path string, write func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // path is inside the configured output directory
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp) }()

	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

var (
	rule     = strings.Repeat("=", 80)
	thinRule = strings.Repeat("-", 80)
)

// WriteQAReport renders the human-readable QA report.
func WriteQAReport(w io.Writer, in ReportInput) error {
	b := bufio.NewWriter(w)
	p := func(format string, args ...any) { fmt.Fprintf(b, format, args...) }

	p("NFL ANALYTICS DATA PIPELINE - QA REPORT\n")
	p("%s\n", rule)
	p("Generated: %s\n", in.GeneratedAt.Format(time.RFC3339))
	p("%s\n\n", rule)

	p("SUMMARY\n%s\n", thinRule)
	p("Total tables loaded: %d\n", len(in.Dictionary))
	p("Total rows ingested: %d\n", in.Dictionary.TotalRows())
	p("Database location: %s\n\n", in.Database)

	p("DATA DICTIONARY\n%s\n", thinRule)
	for _, name := range in.Dictionary.Tables() {
		info := in.Dictionary[name]
		p("\n%s:\n", name)
		p("  Rows: %d\n", info.RowCount)
		p("  Columns: %d\n", info.ColumnCount)
		p("  Missing: %s%%\n", formatPct(info.MissingPercentage))
		if info.SeasonRange != nil {
			p("  Seasons: %d-%d\n", info.SeasonRange[0], info.SeasonRange[1])
		}
		if top := info.TopMissing(5); len(top) > 0 {
			p("  Highest-missing columns:\n")
			for _, c := range top {
				p("    - %s: %s%%\n", c.Column, formatPct(c.Pct))
			}
		}
	}

	writeOutcomes(p, in.Loads, in.Builds)

	p("\n\nQA CHECK RESULTS\n%s\n", thinRule)
	if in.QA != nil {
		writeQA(p, in.QA)
	}

	p("\n%s\n", rule)
	p("END OF REPORT\n")
	return b.Flush()
}

func writeOutcomes(p func(string, ...any), loads []LoadResult, builds []BuildResult) {
	var lines []string
	for _, l := range loads {
		switch {
		case l.Status == StatusFailed:
			lines = append(lines, fmt.Sprintf("  load %s: FAILED (%s)", l.Table, l.Reason))
		case l.DroppedRows > 0 || len(l.NulledFields) > 0:
			lines = append(lines, fmt.Sprintf("  load %s: relaxed parse dropped %d rows, nulled %d fields",
				l.Table, l.DroppedRows, sumCounts(l.NulledFields)))
		}
	}
	for _, r := range builds {
		if r.Status == StatusSkipped || r.Status == StatusFailed {
			lines = append(lines, fmt.Sprintf("  build %s: %s (%s)", r.Table, strings.ToUpper(string(r.Status)), r.Reason))
		}
	}
	if len(lines) == 0 {
		return
	}
	p("\n\nPIPELINE EXCEPTIONS\n%s\n", thinRule)
	for _, l := range lines {
		p("%s\n", l)
	}
}

func writeQA(p func(string, ...any), r *QAReport) {
	if g := r.GIDUniqueness; g != nil {
		p("\nGID Uniqueness: %s\n", g.Status)
		p("  Total: %d, Unique: %d\n", g.TotalGames, g.UniqueGIDs)
	}

	if u := r.PIDUniqueness; u != nil {
		p("\nPID Uniqueness: %s\n", u.Status)
		p("  Total plays: %d, Unique (gid, pid): %d\n", u.TotalPlays, u.UniquePlayIDs)
	}

	if len(r.SeasonCoverage) > 0 {
		p("\nSeason Coverage:\n")
		for _, t := range sortedKeys(r.SeasonCoverage) {
			c := r.SeasonCoverage[t]
			p("  %s: %d-%d (%d seasons)\n", t, c.MinSeason, c.MaxSeason, c.NumSeasons)
		}
	}

	if h := r.HighMissing; h != nil {
		p("\nHigh Missingness Tables (>%s%%):\n", formatPct(h.Threshold))
		tables := sortedKeys(h.Tables)
		sort.SliceStable(tables, func(i, j int) bool { return h.Tables[tables[i]] > h.Tables[tables[j]] })
		for _, t := range tables {
			p("  %s: %s%%\n", t, formatPct(h.Tables[t]))
		}
	}

	if s := r.Sanity; s != nil {
		p("\nSanity Checks:\n")
		if s.Yards != nil {
			p("  Yards: %s (%d suspicious)\n", s.Yards.Status, s.Yards.SuspiciousYards)
		}
		if s.Quarters != nil {
			p("  Quarters: %s (max=%d)\n", s.Quarters.Status, s.Quarters.MaxQtr)
		}
		p("  Play types: %d types detected\n", len(s.PlayTypes))
		for i, pt := range s.PlayTypes {
			if i == 10 {
				break
			}
			p("    - %s: %d\n", pt.Type, pt.Count)
		}
	}

	if len(r.JoinIntegrity) > 0 {
		p("\nJoin Integrity:\n")
		for _, t := range sortedKeys(r.JoinIntegrity) {
			j := r.JoinIntegrity[t]
			p("  %s: %s%% of records matched to plays (%s)\n", t, formatPct(j.MatchPercentage), j.Status)
		}
	}

	if len(r.Unavailable) > 0 {
		p("\nNot Available:\n")
		for _, c := range sortedKeys(r.Unavailable) {
			p("  %s: %s\n", c, r.Unavailable[c])
		}
	}
}

// formatPct prints a percentage without trailing zeros (12.5, 3, 0.25).
func formatPct(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// EmitReports writes the data dictionary and QA report into dir. Each
// artifact is attempted independently; failures are logged and returned in
// the result, never as an error.
func (e *Engine) EmitReports(dir string, in ReportInput) *ReportResult {
	res := &ReportResult{Errors: make(map[string]error)}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		e.logger.Error("failed to create output directory", "dir", dir, "error", err)
		res.Errors[DataDictionaryFile] = err
		res.Errors[QAReportFile] = err
		return res
	}

	dictPath := filepath.Join(dir, DataDictionaryFile)
	if err := WriteDataDictionary(dictPath, in.Dictionary); err != nil {
		e.logger.Error("failed to write data dictionary", "path", dictPath, "error", err)
		res.Errors[DataDictionaryFile] = err
	} else {
		e.logger.Info("wrote data dictionary", "path", dictPath)
		res.Written = append(res.Written, dictPath)
	}

	reportPath := filepath.Join(dir, QAReportFile)
	if err := WriteQAReportFile(reportPath, in); err != nil {
		e.logger.Error("failed to write QA report", "path", reportPath, "error", err)
		res.Errors[QAReportFile] = err
	} else {
		e.logger.Info("wrote QA report", "path", reportPath)
		res.Written = append(res.Written, reportPath)
	}

	return res
}
