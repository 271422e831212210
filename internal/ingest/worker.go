package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/benturneroffice365-web/jetdb/internal/catalog"
	"github.com/benturneroffice365-web/jetdb/internal/observability"
	"github.com/benturneroffice365-web/jetdb/internal/storage"
)

type WorkerConfig struct {
	PollInterval time.Duration
	ClaimedBy    string
}

// Worker drains pending datasets from the catalog one at a time: download the
// raw upload, convert it to Parquet, publish the converted file, then mark
// the dataset ready. Conversion failures mark the dataset failed with the
// reason recorded; the worker keeps running.
type Worker struct {
	Catalog     catalog.Repository
	ObjectStore storage.ObjectStore
	Config      WorkerConfig
	Logger      *slog.Logger
}

func (w *Worker) Run(ctx context.Context) error {
	if w.Catalog == nil {
		return fmt.Errorf("catalog is required")
	}
	if w.ObjectStore == nil {
		return fmt.Errorf("object store is required")
	}
	if w.Config.PollInterval <= 0 {
		w.Config.PollInterval = 2 * time.Second
	}
	if w.Logger == nil {
		w.Logger = slog.Default()
	}

	ticker := time.NewTicker(w.Config.PollInterval)
	defer ticker.Stop()

	for {
		w.drain(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// drain claims and processes datasets until the pending queue is empty.
func (w *Worker) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		dataset, err := w.Catalog.ClaimNextPending(ctx, w.Config.ClaimedBy)
		if err != nil {
			if !errors.Is(err, catalog.ErrNotFound) && ctx.Err() == nil {
				w.Logger.ErrorContext(ctx, "claim pending dataset failed", slog.Any("error", err))
			}
			return
		}
		w.ProcessOne(ctx, dataset)
	}
}

// ProcessOne converts a single claimed dataset end to end.
func (w *Worker) ProcessOne(ctx context.Context, dataset catalog.Dataset) {
	log := w.Logger.With("dataset_id", dataset.DatasetID, "user_id", dataset.UserID)
	start := time.Now()

	result, dataPath, err := w.convert(ctx, dataset)
	if err != nil {
		observability.ObserveDatasetConversion("failed", time.Since(start))
		log.ErrorContext(ctx, "dataset conversion failed", slog.Any("error", err))
		if markErr := w.Catalog.MarkDatasetFailed(ctx, dataset.DatasetID, err.Error()); markErr != nil {
			log.ErrorContext(ctx, "mark dataset failed errored", slog.Any("error", markErr))
		}
		return
	}

	if err := w.Catalog.MarkDatasetReady(ctx, catalog.MarkDatasetReadyInput{
		DatasetID:   dataset.DatasetID,
		DataPath:    dataPath,
		RowCount:    result.RowCount,
		ColumnCount: len(result.Columns),
		Columns:     result.Columns,
	}); err != nil {
		observability.ObserveDatasetConversion("failed", time.Since(start))
		log.ErrorContext(ctx, "mark dataset ready failed", slog.Any("error", err))
		return
	}

	observability.ObserveDatasetConversion("completed", time.Since(start))
	log.InfoContext(ctx, "dataset converted",
		slog.Int64("rows", result.RowCount),
		slog.Int("columns", len(result.Columns)),
		slog.Duration("elapsed", time.Since(start)),
	)
}

func (w *Worker) convert(ctx context.Context, dataset catalog.Dataset) (ConversionResult, string, error) {
	workDir, err := os.MkdirTemp("", "jetdb-ingest-")
	if err != nil {
		return ConversionResult{}, "", fmt.Errorf("create ingest temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	reader, err := w.ObjectStore.Get(ctx, dataset.RawPath)
	if err != nil {
		return ConversionResult{}, "", fmt.Errorf("download raw upload %q: %w", dataset.RawPath, err)
	}
	sourcePath := filepath.Join(workDir, "source")
	if err := writeLocalFile(sourcePath, reader); err != nil {
		_ = reader.Close()
		return ConversionResult{}, "", fmt.Errorf("write local source file: %w", err)
	}
	if err := reader.Close(); err != nil {
		return ConversionResult{}, "", fmt.Errorf("close raw upload %q: %w", dataset.RawPath, err)
	}

	outputPath := filepath.Join(workDir, "data.parquet")
	result, err := ConvertToParquet(ctx, sourcePath, dataset.SourceFormat, outputPath)
	if err != nil {
		return ConversionResult{}, "", err
	}

	dataPath, err := storage.BuildDatasetPath(dataset.UserID, dataset.DatasetID)
	if err != nil {
		return ConversionResult{}, "", fmt.Errorf("build dataset path: %w", err)
	}

	stat, err := os.Stat(outputPath)
	if err != nil {
		return ConversionResult{}, "", fmt.Errorf("stat parquet output: %w", err)
	}
	output, err := os.Open(outputPath)
	if err != nil {
		return ConversionResult{}, "", fmt.Errorf("open parquet output: %w", err)
	}
	defer func() { _ = output.Close() }()

	if _, err := w.ObjectStore.Put(ctx, dataPath, output, stat.Size(), storage.PutOptions{ContentType: "application/octet-stream"}); err != nil {
		return ConversionResult{}, "", fmt.Errorf("upload converted parquet: %w", err)
	}
	return result, dataPath, nil
}

func writeLocalFile(path string, reader io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if _, err := io.Copy(file, reader); err != nil {
		return err
	}
	return nil
}
