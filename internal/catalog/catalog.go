package catalog

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("catalog: not found")

type DatasetStatus string

const (
	StatusPending    DatasetStatus = "pending"
	StatusProcessing DatasetStatus = "processing"
	StatusReady      DatasetStatus = "ready"
	StatusFailed     DatasetStatus = "failed"
)

// Dataset is the metadata record for one uploaded file. DataPath is the
// object-store key of the converted Parquet file and doubles as the dataset
// locator handed to the query engine; it is empty until the dataset is ready.
type Dataset struct {
	DatasetID     string
	UserID        string
	Filename      string
	SourceFormat  string
	RawPath       string
	DataPath      string
	SizeBytes     int64
	RowCount      int64
	ColumnCount   int
	Columns       []string
	Status        DatasetStatus
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type CreateDatasetInput struct {
	DatasetID    string
	UserID       string
	Filename     string
	SourceFormat string
	RawPath      string
	SizeBytes    int64
}

type MarkDatasetReadyInput struct {
	DatasetID   string
	DataPath    string
	RowCount    int64
	ColumnCount int
	Columns     []string
}

type Repository interface {
	HealthCheck(ctx context.Context) error
	CreateDataset(ctx context.Context, in CreateDatasetInput) (Dataset, error)
	GetDataset(ctx context.Context, userID, datasetID string) (Dataset, error)
	ListDatasets(ctx context.Context, userID string) ([]Dataset, error)
	DeleteDataset(ctx context.Context, userID, datasetID string) (bool, error)
	ClaimNextPending(ctx context.Context, claimedBy string) (Dataset, error)
	MarkDatasetReady(ctx context.Context, in MarkDatasetReadyInput) error
	MarkDatasetFailed(ctx context.Context, datasetID, reason string) error
}
