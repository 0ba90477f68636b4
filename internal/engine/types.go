package engine

// Status is the outcome of one pipeline step for one table.
type Status string

// Step outcomes.
const (
	StatusLoaded   Status = "loaded"
	StatusBuilt    Status = "built"
	StatusExported Status = "exported"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// Pipeline steps, used for logging, metrics and run history.
const (
	StepLoad   = "load"
	StepBuild  = "build"
	StepExport = "export"
)

// LoadResult describes one staged table.
type LoadResult struct {
	Table   string `json:"table"`
	File    string `json:"file"`
	Status  Status `json:"status"`
	Rows    int64  `json:"rows"`
	Columns int    `json:"columns"`
	Reason  string `json:"reason,omitempty"`

	// Relaxed is set when the file was parsed with tolerant rules.
	Relaxed bool `json:"relaxed,omitempty"`
	// DroppedRows counts records the reader discarded as structurally broken.
	DroppedRows int64 `json:"dropped_rows,omitempty"`
	// NulledFields counts, per column, non-empty raw values that could not be
	// cast to the column type and were stored as NULL.
	NulledFields map[string]int64 `json:"nulled_fields,omitempty"`
}

// BuildResult describes one canonical table.
type BuildResult struct {
	Table  string `json:"table"`
	Kind   string `json:"kind"`
	Status Status `json:"status"`
	Rows   int64  `json:"rows"`
	Reason string `json:"reason,omitempty"`
}

// ExportResult describes one Parquet export.
type ExportResult struct {
	Table  string `json:"table"`
	Path   string `json:"path"`
	Status Status `json:"status"`
	Rows   int64  `json:"rows"`
	Bytes  int64  `json:"bytes"`
	Reason string `json:"reason,omitempty"`
}

// TableCount is a table name with its row count.
type TableCount struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}
