package duckdb

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/benturneroffice365-web/jetdb/internal/nlq"
	"github.com/benturneroffice365-web/jetdb/internal/storage"
)

type saleRow struct {
	ID      int64   `parquet:"id"`
	Region  string  `parquet:"region"`
	Revenue float64 `parquet:"revenue"`
}

func buildParquet(t *testing.T, rows []saleRow) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[saleRow](buf)
	if _, err := writer.Write(rows); err != nil {
		t.Fatalf("write parquet: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close parquet writer: %v", err)
	}
	return buf.Bytes()
}

func storeWith(t *testing.T, key string, rows []saleRow) *memoryStore {
	t.Helper()
	return &memoryStore{objects: map[string][]byte{key: buildParquet(t, rows)}}
}

func TestInspectReturnsSchemaAndSamples(t *testing.T) {
	store := storeWith(t, "alice/sales/data.parquet", []saleRow{
		{ID: 1, Region: "west", Revenue: 10.5},
		{ID: 2, Region: "east", Revenue: 20.0},
		{ID: 3, Region: "west", Revenue: 7.25},
		{ID: 4, Region: "north", Revenue: 1.0},
	})
	engine := NewEngine(store, Config{})

	snapshot, err := engine.Inspect(context.Background(), "alice/sales/data.parquet")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(snapshot.Columns) != 3 {
		t.Fatalf("columns = %d", len(snapshot.Columns))
	}
	if snapshot.Columns[0].Name != "id" || snapshot.Columns[1].Name != "region" || snapshot.Columns[2].Name != "revenue" {
		t.Fatalf("column order = %+v", snapshot.Columns)
	}
	if snapshot.Columns[1].DeclaredType != "VARCHAR" {
		t.Fatalf("region type = %q", snapshot.Columns[1].DeclaredType)
	}
	if snapshot.RowCountSampled != 3 || len(snapshot.SampleRows) != 3 {
		t.Fatalf("samples = %d reported = %d", len(snapshot.SampleRows), snapshot.RowCountSampled)
	}
}

func TestInspectSmallDatasetSamplesFewerRows(t *testing.T) {
	store := storeWith(t, "alice/tiny/data.parquet", []saleRow{{ID: 1, Region: "west", Revenue: 1}})
	engine := NewEngine(store, Config{})

	snapshot, err := engine.Inspect(context.Background(), "alice/tiny/data.parquet")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if snapshot.RowCountSampled != 1 {
		t.Fatalf("RowCountSampled = %d", snapshot.RowCountSampled)
	}
}

func TestInspectMissingObjectIsSchemaUnavailable(t *testing.T) {
	engine := NewEngine(&memoryStore{objects: map[string][]byte{}}, Config{})

	_, err := engine.Inspect(context.Background(), "alice/missing/data.parquet")
	if kind, ok := nlq.KindOf(err); !ok || kind != nlq.KindSchemaUnavailable {
		t.Fatalf("kind = %v ok = %v (err = %v)", kind, ok, err)
	}
}

func TestExecuteAggregatesAndKeysRowsByColumnOrder(t *testing.T) {
	store := storeWith(t, "alice/sales/data.parquet", []saleRow{
		{ID: 1, Region: "west", Revenue: 10.5},
		{ID: 2, Region: "east", Revenue: 20.0},
		{ID: 3, Region: "west", Revenue: 7.25},
	})
	engine := NewEngine(store, Config{})

	result, err := engine.Execute(context.Background(),
		nlq.CandidateQuery{RawText: "SELECT region, SUM(revenue) AS total FROM data GROUP BY region ORDER BY total DESC"},
		"alice/sales/data.parquet")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.RowCountReturned != 2 || result.Truncated {
		t.Fatalf("result = %+v", result)
	}
	if len(result.ColumnOrder) != 2 || result.ColumnOrder[0] != "region" || result.ColumnOrder[1] != "total" {
		t.Fatalf("ColumnOrder = %v", result.ColumnOrder)
	}
	first := result.Rows[0]
	if len(first) != 2 {
		t.Fatalf("row keys = %v", first)
	}
	if first["region"] != "east" || first["total"] != float64(20.0) {
		t.Fatalf("first row = %v", first)
	}
	if result.ExecutionTimeMs <= 0 {
		t.Fatalf("ExecutionTimeMs = %v", result.ExecutionTimeMs)
	}
}

func TestExecuteTruncatesAtRowCap(t *testing.T) {
	rows := make([]saleRow, 5)
	for i := range rows {
		rows[i] = saleRow{ID: int64(i + 1), Region: "west", Revenue: float64(i)}
	}
	store := storeWith(t, "alice/sales/data.parquet", rows)
	engine := NewEngine(store, Config{MaxResultRows: 3})

	result, err := engine.Execute(context.Background(),
		nlq.CandidateQuery{RawText: "SELECT * FROM data ORDER BY id"},
		"alice/sales/data.parquet")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Truncated {
		t.Fatal("expected truncated result")
	}
	if result.RowCountReturned != 3 || len(result.Rows) != 3 {
		t.Fatalf("rows = %d reported = %d", len(result.Rows), result.RowCountReturned)
	}
}

func TestExecuteEmptyResultIsNotTruncated(t *testing.T) {
	store := storeWith(t, "alice/sales/data.parquet", []saleRow{
		{ID: 1, Region: "west", Revenue: 10.5},
		{ID: 2, Region: "east", Revenue: 20.0},
	})
	engine := NewEngine(store, Config{})

	result, err := engine.Execute(context.Background(),
		nlq.CandidateQuery{RawText: "SELECT * FROM data WHERE id < 0"},
		"alice/sales/data.parquet")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.RowCountReturned != 0 || result.Truncated {
		t.Fatalf("result = %+v", result)
	}
	if result.Rows == nil || len(result.Rows) != 0 {
		t.Fatalf("Rows must be an empty non-nil slice, got %#v", result.Rows)
	}
	if len(result.ColumnOrder) != 3 {
		t.Fatalf("ColumnOrder = %v", result.ColumnOrder)
	}
}

func TestExecuteExactlyAtCapIsNotTruncated(t *testing.T) {
	rows := make([]saleRow, 3)
	for i := range rows {
		rows[i] = saleRow{ID: int64(i + 1), Region: "west", Revenue: float64(i)}
	}
	store := storeWith(t, "alice/sales/data.parquet", rows)
	engine := NewEngine(store, Config{MaxResultRows: 3})

	result, err := engine.Execute(context.Background(),
		nlq.CandidateQuery{RawText: "SELECT * FROM data"},
		"alice/sales/data.parquet")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Truncated {
		t.Fatal("result at the cap must not be flagged truncated")
	}
	if result.RowCountReturned != 3 {
		t.Fatalf("RowCountReturned = %d", result.RowCountReturned)
	}
}

func TestExecuteInvalidSQLIsExecutionFailed(t *testing.T) {
	store := storeWith(t, "alice/sales/data.parquet", []saleRow{{ID: 1, Region: "west", Revenue: 1}})
	engine := NewEngine(store, Config{})

	_, err := engine.Execute(context.Background(),
		nlq.CandidateQuery{RawText: "SELECT no_such_column FROM data"},
		"alice/sales/data.parquet")
	if kind, ok := nlq.KindOf(err); !ok || kind != nlq.KindQueryExecutionFailed {
		t.Fatalf("kind = %v ok = %v (err = %v)", kind, ok, err)
	}
}

func TestExecuteLongRunningQueryTimesOut(t *testing.T) {
	store := storeWith(t, "alice/sales/data.parquet", []saleRow{{ID: 1, Region: "west", Revenue: 1}})
	engine := NewEngine(store, Config{StatementTimeout: 50 * time.Millisecond})

	_, err := engine.Execute(context.Background(),
		nlq.CandidateQuery{RawText: "SELECT max(a.range * b.range) FROM range(5000000) a, range(1000) b"},
		"alice/sales/data.parquet")
	if kind, ok := nlq.KindOf(err); !ok || kind != nlq.KindQueryTimeout {
		t.Fatalf("kind = %v ok = %v (err = %v)", kind, ok, err)
	}
}

type memoryStore struct {
	objects map[string][]byte
}

func (m *memoryStore) Put(context.Context, string, io.Reader, int64, storage.PutOptions) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	body, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (m *memoryStore) Stat(context.Context, string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, nil
}

func (m *memoryStore) Delete(context.Context, string) error {
	return nil
}
