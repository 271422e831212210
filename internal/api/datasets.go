package api

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/benturneroffice365-web/jetdb/internal/catalog"
	"github.com/benturneroffice365-web/jetdb/internal/config"
	"github.com/benturneroffice365-web/jetdb/internal/nlq"
	"github.com/benturneroffice365-web/jetdb/internal/observability"
	"github.com/benturneroffice365-web/jetdb/internal/storage"
)

const defaultPreviewRows = 100

type datasetResponse struct {
	DatasetID     string    `json:"dataset_id"`
	Filename      string    `json:"filename"`
	SourceFormat  string    `json:"source_format"`
	SizeBytes     int64     `json:"size_bytes"`
	RowCount      int64     `json:"row_count"`
	ColumnCount   int       `json:"column_count"`
	Columns       []string  `json:"columns"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toDatasetResponse(dataset catalog.Dataset) datasetResponse {
	return datasetResponse{
		DatasetID:     dataset.DatasetID,
		Filename:      dataset.Filename,
		SourceFormat:  dataset.SourceFormat,
		SizeBytes:     dataset.SizeBytes,
		RowCount:      dataset.RowCount,
		ColumnCount:   dataset.ColumnCount,
		Columns:       dataset.Columns,
		Status:        string(dataset.Status),
		FailureReason: dataset.FailureReason,
		CreatedAt:     dataset.CreatedAt,
		UpdatedAt:     dataset.UpdatedAt,
	}
}

func handleUploadDataset(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Catalog == nil || deps.ObjectStore == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "UPLOAD_NOT_CONFIGURED", "upload dependencies are not configured", false, nil)
		return
	}
	userID, err := userFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "USER_REQUIRED", err.Error(), false, nil)
		return
	}
	if err := requireRole(r, "dataset_writer"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	maxBytes := int64(cfg.HTTP.MaxUploadMB) << 20
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MULTIPART", "invalid multipart upload", false, map[string]any{"details": err.Error()})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "FILE_REQUIRED", "multipart field 'file' is required", false, nil)
		return
	}
	defer func() { _ = file.Close() }()

	sourceFormat, err := sourceFormatFromFilename(header.Filename)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), false, nil)
		return
	}

	datasetID := newDatasetID()
	rawPath, err := storage.BuildRawUploadPath(userID, datasetID, header.Filename)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_FILENAME", err.Error(), false, nil)
		return
	}

	if _, err := deps.ObjectStore.Put(r.Context(), rawPath, file, header.Size, storage.PutOptions{ContentType: "application/octet-stream"}); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "UPLOAD_FAILED", "failed to store uploaded file", true, map[string]any{"details": err.Error()})
		return
	}

	dataset, err := deps.Catalog.CreateDataset(r.Context(), catalog.CreateDatasetInput{
		DatasetID:    datasetID,
		UserID:       userID,
		Filename:     header.Filename,
		SourceFormat: sourceFormat,
		RawPath:      rawPath,
		SizeBytes:    header.Size,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to register dataset", true, map[string]any{"details": err.Error()})
		return
	}

	observability.IncrementDatasetUploads()
	writeJSON(w, http.StatusAccepted, toDatasetResponse(dataset))
}

func handleListDatasets(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CATALOG_NOT_CONFIGURED", "catalog is not configured", false, nil)
		return
	}
	userID, err := userFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "USER_REQUIRED", err.Error(), false, nil)
		return
	}

	datasets, err := deps.Catalog.ListDatasets(r.Context(), userID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to list datasets", true, map[string]any{"details": err.Error()})
		return
	}

	responses := make([]datasetResponse, 0, len(datasets))
	for _, dataset := range datasets {
		responses = append(responses, toDatasetResponse(dataset))
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": responses})
}

func handleGetDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CATALOG_NOT_CONFIGURED", "catalog is not configured", false, nil)
		return
	}
	userID, err := userFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "USER_REQUIRED", err.Error(), false, nil)
		return
	}

	datasetID := strings.TrimSpace(r.PathValue("dataset"))
	dataset, err := deps.Catalog.GetDataset(r.Context(), userID, datasetID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "DATASET_NOT_FOUND", "dataset not found", false, map[string]any{"dataset_id": datasetID})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to load dataset", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toDatasetResponse(dataset))
}

func handleDeleteDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CATALOG_NOT_CONFIGURED", "catalog is not configured", false, nil)
		return
	}
	userID, err := userFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "USER_REQUIRED", err.Error(), false, nil)
		return
	}
	if err := requireRole(r, "dataset_writer"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	datasetID := strings.TrimSpace(r.PathValue("dataset"))
	dataset, err := deps.Catalog.GetDataset(r.Context(), userID, datasetID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "DATASET_NOT_FOUND", "dataset not found", false, map[string]any{"dataset_id": datasetID})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to load dataset", true, map[string]any{"details": err.Error()})
		return
	}

	deleted, err := deps.Catalog.DeleteDataset(r.Context(), userID, datasetID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to delete dataset", true, map[string]any{"details": err.Error()})
		return
	}
	if !deleted {
		writeError(r.Context(), w, http.StatusNotFound, "DATASET_NOT_FOUND", "dataset not found", false, map[string]any{"dataset_id": datasetID})
		return
	}

	// Stored objects are removed best effort; the catalog row is the source
	// of truth and is already gone.
	if deps.ObjectStore != nil {
		for _, key := range []string{dataset.RawPath, dataset.DataPath} {
			if strings.TrimSpace(key) == "" {
				continue
			}
			if err := deps.ObjectStore.Delete(r.Context(), key); err != nil && deps.Logger != nil {
				deps.Logger.WarnContext(r.Context(), "delete dataset object failed", "key", key, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "dataset_id": datasetID})
}

// handleDatasetPreview returns the first rows of a converted dataset via the
// same bounded execution path queries use.
func handleDatasetPreview(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Executor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}
	userID, err := userFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "USER_REQUIRED", err.Error(), false, nil)
		return
	}

	limit := defaultPreviewRows
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", false, nil)
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_OFFSET", "offset must be a non-negative integer", false, nil)
			return
		}
		offset = parsed
	}

	dataset, ok := resolveReadyDataset(deps, w, r, userID, r.PathValue("dataset"))
	if !ok {
		return
	}

	candidate := nlq.CandidateQuery{RawText: fmt.Sprintf("SELECT * FROM data LIMIT %d OFFSET %d", limit, offset)}
	result, err := deps.Executor.Execute(r.Context(), candidate, dataset.DataPath)
	if err != nil {
		writePipelineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		DatasetID:        dataset.DatasetID,
		SQLQuery:         candidate.RawText,
		Rows:             result.Rows,
		ColumnOrder:      result.ColumnOrder,
		RowCountReturned: result.RowCountReturned,
		Truncated:        result.Truncated,
		ExecutionTimeMs:  result.ExecutionTimeMs,
	})
}

func sourceFormatFromFilename(filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return "csv", nil
	case ".parquet":
		return "parquet", nil
	default:
		return "", fmt.Errorf("unsupported file extension %q: expected .csv or .parquet", filepath.Ext(filename))
	}
}

func newDatasetID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("ds-%d", time.Now().UnixNano())
	}
	return "ds-" + hex.EncodeToString(buf)
}
