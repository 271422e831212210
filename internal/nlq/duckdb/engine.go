// Package duckdb runs dataset introspection and bounded query execution on an
// in-process DuckDB instance. Each call materializes the dataset's Parquet
// file from the object store into a scratch directory, exposes it as a view
// named data, and tears everything down afterwards.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/benturneroffice365-web/jetdb/internal/nlq"
	"github.com/benturneroffice365-web/jetdb/internal/storage"
)

const datasetViewName = "data"

type Config struct {
	MaxResultRows    int
	StatementTimeout time.Duration
	SchemaSampleRows int
}

type Engine struct {
	store      storage.ObjectStore
	maxRows    int
	timeout    time.Duration
	sampleRows int
}

func NewEngine(store storage.ObjectStore, cfg Config) *Engine {
	maxRows := cfg.MaxResultRows
	if maxRows <= 0 {
		maxRows = 10000
	}
	timeout := cfg.StatementTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	sampleRows := cfg.SchemaSampleRows
	if sampleRows <= 0 || sampleRows > 3 {
		sampleRows = 3
	}
	return &Engine{store: store, maxRows: maxRows, timeout: timeout, sampleRows: sampleRows}
}

// Inspect reads column names, declared types and up to sampleRows example
// rows from the dataset. The snapshot preserves physical column order.
func (e *Engine) Inspect(ctx context.Context, locator string) (nlq.SchemaSnapshot, error) {
	var snapshot nlq.SchemaSnapshot
	err := e.withDataset(ctx, locator, func(db *sql.DB) error {
		columns, err := describeColumns(ctx, db)
		if err != nil {
			return err
		}
		samples, err := sampleRows(ctx, db, e.sampleRows)
		if err != nil {
			return err
		}
		snapshot = nlq.SchemaSnapshot{
			Columns:         columns,
			SampleRows:      samples,
			RowCountSampled: len(samples),
		}
		return nil
	})
	if err != nil {
		return nlq.SchemaSnapshot{}, nlq.SchemaUnavailable(err)
	}
	return snapshot, nil
}

// Execute runs the candidate verbatim under the statement timeout, collecting
// at most maxRows rows. Truncated reports whether the statement produced more
// rows than the cap.
func (e *Engine) Execute(ctx context.Context, candidate nlq.CandidateQuery, locator string) (nlq.Result, error) {
	var result nlq.Result
	err := e.withDataset(ctx, locator, func(db *sql.DB) error {
		queryCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		start := time.Now()
		rows, err := db.QueryContext(queryCtx, candidate.RawText)
		if err != nil {
			return e.classifyQueryError(queryCtx, err)
		}
		defer func() { _ = rows.Close() }()

		columns, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("query columns: %w", err)
		}

		collected := make([]map[string]any, 0)
		for rows.Next() {
			if len(collected) == e.maxRows {
				result.Truncated = true
				break
			}
			values := make([]any, len(columns))
			scanTargets := make([]any, len(columns))
			for i := range values {
				scanTargets[i] = &values[i]
			}
			if err := rows.Scan(scanTargets...); err != nil {
				return fmt.Errorf("scan row: %w", err)
			}
			rowMap := make(map[string]any, len(columns))
			for i, column := range columns {
				rowMap[column] = normalizeValue(values[i])
			}
			collected = append(collected, rowMap)
		}
		if err := rows.Err(); err != nil {
			return e.classifyQueryError(queryCtx, err)
		}

		result.Rows = collected
		result.ColumnOrder = columns
		result.RowCountReturned = len(collected)
		result.ExecutionTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
		return nil
	})
	if err != nil {
		if _, ok := nlq.KindOf(err); ok {
			return nlq.Result{}, err
		}
		return nlq.Result{}, nlq.ExecutionFailed(err)
	}
	return result, nil
}

// withDataset materializes the locator's Parquet object into a temp file and
// hands fn a connection with the data view already in place.
func (e *Engine) withDataset(ctx context.Context, locator string, fn func(db *sql.DB) error) error {
	if e.store == nil {
		return fmt.Errorf("object store is required")
	}
	if strings.TrimSpace(locator) == "" {
		return fmt.Errorf("dataset locator is required")
	}

	workDir, err := os.MkdirTemp("", "jetdb-query-")
	if err != nil {
		return fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPath, err := e.spillDataset(ctx, locator, workDir)
	if err != nil {
		return err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`,
		quoteIdent(datasetViewName), quoteString(localPath))
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		return fmt.Errorf("create dataset view: %w", err)
	}
	return fn(db)
}

// spillDataset downloads the locator's Parquet object into workDir and
// returns the local path. The file is closed before the path is handed to
// DuckDB so the full object is on disk when read_parquet opens it.
func (e *Engine) spillDataset(ctx context.Context, locator, workDir string) (string, error) {
	reader, err := e.store.Get(ctx, locator)
	if err != nil {
		return "", fmt.Errorf("get object %q: %w", locator, err)
	}
	defer func() { _ = reader.Close() }()

	localPath := filepath.Join(workDir, "data.parquet")
	file, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("create local parquet file: %w", err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("write local parquet file %q: %w", localPath, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("flush local parquet file %q: %w", localPath, err)
	}
	return localPath, nil
}

func (e *Engine) classifyQueryError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return nlq.QueryTimeout(e.timeout)
	}
	return nlq.ExecutionFailed(err)
}

func describeColumns(ctx context.Context, db *sql.DB) ([]nlq.ColumnDescriptor, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("DESCRIBE %s", quoteIdent(datasetViewName)))
	if err != nil {
		return nil, fmt.Errorf("describe dataset: %w", err)
	}
	defer func() { _ = rows.Close() }()

	fields, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("describe columns: %w", err)
	}

	descriptors := make([]nlq.ColumnDescriptor, 0)
	for rows.Next() {
		values := make([]any, len(fields))
		scanTargets := make([]any, len(fields))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan describe row: %w", err)
		}
		descriptors = append(descriptors, nlq.ColumnDescriptor{
			Name:         asString(values[0]),
			DeclaredType: asString(values[1]),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate describe rows: %w", err)
	}
	return descriptors, nil
}

func sampleRows(ctx context.Context, db *sql.DB, limit int) ([][]any, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdent(datasetViewName), limit))
	if err != nil {
		return nil, fmt.Errorf("sample dataset: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sample columns: %w", err)
	}

	samples := make([][]any, 0, limit)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan sample row: %w", err)
		}
		normalized := make([]any, len(values))
		for i, value := range values {
			normalized[i] = normalizeValue(value)
		}
		samples = append(samples, normalized)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sample rows: %w", err)
	}
	return samples, nil
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}

func asString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	default:
		return fmt.Sprintf("%v", typed)
	}
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
