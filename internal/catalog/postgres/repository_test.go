package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/benturneroffice365-web/jetdb/internal/catalog"
)

func TestCreateDataset(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO dataset (dataset_id, user_id, filename, source_format, raw_path, size_bytes, status)
VALUES ($1, $2, $3, $4, $5, $6, 'pending')
RETURNING created_at, updated_at`)).
		WithArgs("ds-1", "user-1", "sales.csv", "csv", "user-1/ds-1/raw/sales.csv", int64(2048)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	dataset, err := repo.CreateDataset(context.Background(), catalog.CreateDatasetInput{
		DatasetID:    "ds-1",
		UserID:       "user-1",
		Filename:     "sales.csv",
		SourceFormat: "csv",
		RawPath:      "user-1/ds-1/raw/sales.csv",
		SizeBytes:    2048,
	})
	if err != nil {
		t.Fatalf("CreateDataset() error = %v", err)
	}
	if dataset.Status != catalog.StatusPending {
		t.Fatalf("Status = %q", dataset.Status)
	}
	if !dataset.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt = %v, want %v", dataset.CreatedAt, now)
	}
	assertSQLMock(t, mock)
}

func TestGetDatasetDecodesColumns(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now()

	mock.ExpectQuery("SELECT .+ FROM dataset").
		WithArgs("user-1", "ds-1").
		WillReturnRows(datasetRows().AddRow(
			"ds-1", "user-1", "sales.csv", "csv", "user-1/ds-1/raw/sales.csv", "user-1/ds-1/data.parquet",
			int64(2048), int64(120), 3, []byte(`["id","revenue","region"]`), "ready", "", now, now,
		))

	dataset, err := repo.GetDataset(context.Background(), "user-1", "ds-1")
	if err != nil {
		t.Fatalf("GetDataset() error = %v", err)
	}
	if dataset.Status != catalog.StatusReady {
		t.Fatalf("Status = %q", dataset.Status)
	}
	if len(dataset.Columns) != 3 || dataset.Columns[1] != "revenue" {
		t.Fatalf("Columns = %v", dataset.Columns)
	}
	assertSQLMock(t, mock)
}

func TestGetDatasetNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery("SELECT .+ FROM dataset").
		WithArgs("user-1", "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetDataset(context.Background(), "user-1", "missing")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("err = %v, want catalog.ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestClaimNextPendingNone(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery("UPDATE dataset").
		WithArgs("worker-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.ClaimNextPending(context.Background(), "worker-1")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("err = %v, want catalog.ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestClaimNextPendingReturnsClaimedDataset(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now()

	mock.ExpectQuery("UPDATE dataset").
		WithArgs("worker-1").
		WillReturnRows(datasetRows().AddRow(
			"ds-7", "user-1", "sales.csv", "csv", "user-1/ds-7/raw/sales.csv", "",
			int64(2048), int64(0), 0, []byte(`[]`), "processing", "", now, now,
		))

	dataset, err := repo.ClaimNextPending(context.Background(), "worker-1")
	if err != nil {
		t.Fatalf("ClaimNextPending() error = %v", err)
	}
	if dataset.DatasetID != "ds-7" {
		t.Fatalf("DatasetID = %q", dataset.DatasetID)
	}
	if dataset.Status != catalog.StatusProcessing {
		t.Fatalf("Status = %q", dataset.Status)
	}
	assertSQLMock(t, mock)
}

func TestMarkDatasetReady(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec("UPDATE dataset").
		WithArgs("ds-1", "user-1/ds-1/data.parquet", int64(120), 3, `["id","revenue","region"]`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkDatasetReady(context.Background(), catalog.MarkDatasetReadyInput{
		DatasetID:   "ds-1",
		DataPath:    "user-1/ds-1/data.parquet",
		RowCount:    120,
		ColumnCount: 3,
		Columns:     []string{"id", "revenue", "region"},
	})
	if err != nil {
		t.Fatalf("MarkDatasetReady() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestMarkDatasetFailedMissingDataset(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec("UPDATE dataset").
		WithArgs("missing", "conversion blew up").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkDatasetFailed(context.Background(), "missing", "conversion blew up")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("err = %v, want catalog.ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestDeleteDataset(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec("DELETE FROM dataset").
		WithArgs("user-1", "ds-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.DeleteDataset(context.Background(), "user-1", "ds-1")
	if err != nil {
		t.Fatalf("DeleteDataset() error = %v", err)
	}
	if !deleted {
		t.Fatal("expected deleted = true")
	}
	assertSQLMock(t, mock)
}

func datasetRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"dataset_id", "user_id", "filename", "source_format", "raw_path", "data_path",
		"size_bytes", "row_count", "column_count", "columns", "status", "failure_reason",
		"created_at", "updated_at",
	})
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
