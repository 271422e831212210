// Package ingest converts uploaded files into the canonical Parquet layout
// the query engine reads, and runs the background worker that drains pending
// datasets from the catalog.
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"
)

type ConversionResult struct {
	RowCount int64
	Columns  []string
}

// ConvertToParquet reads a local source file and writes a ZSTD-compressed
// Parquet file with sanitized column names. Supported formats are csv and
// parquet; parquet sources are rewritten so the output always carries the
// sanitized schema.
func ConvertToParquet(ctx context.Context, sourcePath, sourceFormat, outputPath string) (ConversionResult, error) {
	relation, err := sourceRelation(sourcePath, sourceFormat)
	if err != nil {
		return ConversionResult{}, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return ConversionResult{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE OR REPLACE VIEW src AS SELECT * FROM %s`, relation)); err != nil {
		return ConversionResult{}, fmt.Errorf("read source file: %w", err)
	}

	originals, err := sourceColumns(ctx, db)
	if err != nil {
		return ConversionResult{}, err
	}
	if len(originals) == 0 {
		return ConversionResult{}, fmt.Errorf("source file has no columns")
	}
	sanitized := SanitizeColumnNames(originals)

	selections := make([]string, len(originals))
	for i := range originals {
		selections[i] = fmt.Sprintf("%s AS %s", quoteIdent(originals[i]), quoteIdent(sanitized[i]))
	}

	copySQL := fmt.Sprintf(
		`COPY (SELECT %s FROM src) TO %s (FORMAT PARQUET, COMPRESSION ZSTD)`,
		strings.Join(selections, ", "),
		quoteString(outputPath),
	)
	if _, err := db.ExecContext(ctx, copySQL); err != nil {
		return ConversionResult{}, fmt.Errorf("write parquet output: %w", err)
	}

	var rowCount int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM src`).Scan(&rowCount); err != nil {
		return ConversionResult{}, fmt.Errorf("count source rows: %w", err)
	}

	return ConversionResult{RowCount: rowCount, Columns: sanitized}, nil
}

func sourceRelation(sourcePath, sourceFormat string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(sourceFormat)) {
	case "csv":
		return fmt.Sprintf(`read_csv_auto(%s, sample_size=-1)`, quoteString(sourcePath)), nil
	case "parquet":
		return fmt.Sprintf(`read_parquet(%s)`, quoteString(sourcePath)), nil
	default:
		return "", fmt.Errorf("unsupported source format %q", sourceFormat)
	}
}

func sourceColumns(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `DESCRIBE src`)
	if err != nil {
		return nil, fmt.Errorf("describe source: %w", err)
	}
	defer func() { _ = rows.Close() }()

	fields, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("describe fields: %w", err)
	}

	columns := make([]string, 0)
	for rows.Next() {
		values := make([]any, len(fields))
		scanTargets := make([]any, len(fields))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan describe row: %w", err)
		}
		switch name := values[0].(type) {
		case string:
			columns = append(columns, name)
		case []byte:
			columns = append(columns, string(name))
		default:
			return nil, fmt.Errorf("unexpected column name type %T", values[0])
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate describe rows: %w", err)
	}
	return columns, nil
}

// SanitizeColumnNames maps arbitrary header names onto lowercase identifiers
// safe to reference in generated SQL. Non-alphanumeric runs collapse to a
// single underscore, empty names become column_N, and duplicates get a
// numeric suffix.
func SanitizeColumnNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, len(names))
	for i, name := range names {
		clean := sanitizeIdentifier(name)
		if clean == "" {
			clean = fmt.Sprintf("column_%d", i+1)
		}
		if _, dup := seen[clean]; dup {
			base := clean
			for n := 1; ; n++ {
				clean = fmt.Sprintf("%s_%d", base, n)
				if _, taken := seen[clean]; !taken {
					break
				}
			}
		}
		seen[clean] = struct{}{}
		out[i] = clean
	}
	return out
}

func sanitizeIdentifier(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteRune('_')
			}
			lastUnderscore = true
		}
	}
	clean := strings.Trim(b.String(), "_")
	if clean != "" && clean[0] >= '0' && clean[0] <= '9' {
		clean = "c_" + clean
	}
	return clean
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
