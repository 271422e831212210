// Package nlq turns a natural-language question about a dataset into a
// safely-bounded SQL query and executes it against the analytical engine.
package nlq

import "context"

// ColumnDescriptor is one column of the introspected dataset, in physical
// column order.
type ColumnDescriptor struct {
	Name         string `json:"name"`
	DeclaredType string `json:"declared_type"`
}

// SchemaSnapshot is built fresh per request and owned by that request.
type SchemaSnapshot struct {
	Columns         []ColumnDescriptor
	SampleRows      [][]any
	RowCountSampled int
}

// CandidateQuery is the unvalidated language-model output. It exists only
// between synthesis and validation.
type CandidateQuery struct {
	RawText string
}

type ValidationVerdict struct {
	Accepted bool
	Reason   string
}

// Result is the bounded outcome of executing a validated query. Every row is
// keyed by exactly the columns in ColumnOrder; synthesized columns
// (aggregates, aliases) widen ColumnOrder beyond the dataset schema.
type Result struct {
	Rows             []map[string]any
	ColumnOrder      []string
	Truncated        bool
	RowCountReturned int
	ExecutionTimeMs  float64
}

type Introspector interface {
	Inspect(ctx context.Context, locator string) (SchemaSnapshot, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, question string, schema SchemaSnapshot) (CandidateQuery, error)
}

// Executor runs a candidate verbatim under the statement timeout and row cap.
// Only callable after an accepted ValidationVerdict.
type Executor interface {
	Execute(ctx context.Context, candidate CandidateQuery, locator string) (Result, error)
}
