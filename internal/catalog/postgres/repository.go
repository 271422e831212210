package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/benturneroffice365-web/jetdb/internal/catalog"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

const datasetColumns = `dataset_id, user_id, filename, source_format, raw_path, data_path, size_bytes, row_count, column_count, columns, status, failure_reason, created_at, updated_at`

func (r *Repository) CreateDataset(ctx context.Context, in catalog.CreateDatasetInput) (catalog.Dataset, error) {
	query := `
INSERT INTO dataset (dataset_id, user_id, filename, source_format, raw_path, size_bytes, status)
VALUES ($1, $2, $3, $4, $5, $6, 'pending')
RETURNING created_at, updated_at`

	dataset := catalog.Dataset{
		DatasetID:    in.DatasetID,
		UserID:       in.UserID,
		Filename:     in.Filename,
		SourceFormat: in.SourceFormat,
		RawPath:      in.RawPath,
		SizeBytes:    in.SizeBytes,
		Status:       catalog.StatusPending,
		Columns:      []string{},
	}
	if err := r.db.QueryRowContext(ctx, query, in.DatasetID, in.UserID, in.Filename, in.SourceFormat, in.RawPath, in.SizeBytes).Scan(&dataset.CreatedAt, &dataset.UpdatedAt); err != nil {
		return catalog.Dataset{}, fmt.Errorf("create dataset: %w", err)
	}
	return dataset, nil
}

func (r *Repository) GetDataset(ctx context.Context, userID, datasetID string) (catalog.Dataset, error) {
	query := `
SELECT ` + datasetColumns + `
FROM dataset
WHERE user_id = $1 AND dataset_id = $2`

	dataset, err := scanDataset(r.db.QueryRowContext(ctx, query, userID, datasetID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Dataset{}, catalog.ErrNotFound
		}
		return catalog.Dataset{}, fmt.Errorf("get dataset: %w", err)
	}
	return dataset, nil
}

func (r *Repository) ListDatasets(ctx context.Context, userID string) ([]catalog.Dataset, error) {
	query := `
SELECT ` + datasetColumns + `
FROM dataset
WHERE user_id = $1
ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	datasets := make([]catalog.Dataset, 0)
	for rows.Next() {
		dataset, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dataset row: %w", err)
		}
		datasets = append(datasets, dataset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dataset rows: %w", err)
	}
	return datasets, nil
}

func (r *Repository) DeleteDataset(ctx context.Context, userID, datasetID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM dataset
WHERE user_id = $1 AND dataset_id = $2`, userID, datasetID)
	if err != nil {
		return false, fmt.Errorf("delete dataset: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete dataset rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClaimNextPending moves the oldest pending dataset to processing under SKIP
// LOCKED so concurrent workers never claim the same dataset twice.
func (r *Repository) ClaimNextPending(ctx context.Context, claimedBy string) (catalog.Dataset, error) {
	query := `
UPDATE dataset
SET status = 'processing', claimed_by = $1, claimed_at = now(), updated_at = now()
WHERE dataset_id = (
	SELECT dataset_id FROM dataset
	WHERE status = 'pending'
	ORDER BY created_at ASC
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + datasetColumns

	dataset, err := scanDataset(r.db.QueryRowContext(ctx, query, claimedBy))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Dataset{}, catalog.ErrNotFound
		}
		return catalog.Dataset{}, fmt.Errorf("claim pending dataset: %w", err)
	}
	return dataset, nil
}

func (r *Repository) MarkDatasetReady(ctx context.Context, in catalog.MarkDatasetReadyInput) error {
	columnsJSON, err := json.Marshal(in.Columns)
	if err != nil {
		return fmt.Errorf("marshal dataset columns: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
UPDATE dataset
SET status = 'ready', data_path = $2, row_count = $3, column_count = $4, columns = $5::jsonb, failure_reason = '', updated_at = now()
WHERE dataset_id = $1`, in.DatasetID, in.DataPath, in.RowCount, in.ColumnCount, string(columnsJSON))
	if err != nil {
		return fmt.Errorf("mark dataset ready: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark dataset ready rows affected: %w", err)
	}
	if affected == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (r *Repository) MarkDatasetFailed(ctx context.Context, datasetID, reason string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE dataset
SET status = 'failed', failure_reason = $2, updated_at = now()
WHERE dataset_id = $1`, datasetID, reason)
	if err != nil {
		return fmt.Errorf("mark dataset failed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark dataset failed rows affected: %w", err)
	}
	if affected == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataset(row rowScanner) (catalog.Dataset, error) {
	var (
		dataset     catalog.Dataset
		columnsJSON []byte
	)
	if err := row.Scan(
		&dataset.DatasetID,
		&dataset.UserID,
		&dataset.Filename,
		&dataset.SourceFormat,
		&dataset.RawPath,
		&dataset.DataPath,
		&dataset.SizeBytes,
		&dataset.RowCount,
		&dataset.ColumnCount,
		&columnsJSON,
		&dataset.Status,
		&dataset.FailureReason,
		&dataset.CreatedAt,
		&dataset.UpdatedAt,
	); err != nil {
		return catalog.Dataset{}, err
	}
	if len(columnsJSON) > 0 {
		if err := json.Unmarshal(columnsJSON, &dataset.Columns); err != nil {
			return catalog.Dataset{}, fmt.Errorf("decode dataset columns: %w", err)
		}
	}
	if dataset.Columns == nil {
		dataset.Columns = []string{}
	}
	return dataset, nil
}
