package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/benturneroffice365-web/jetdb/internal/catalog"
	"github.com/benturneroffice365-web/jetdb/internal/config"
	"github.com/benturneroffice365-web/jetdb/internal/nlq"
)

type naturalQueryRequest struct {
	DatasetID string `json:"dataset_id"`
	Question  string `json:"question"`
}

type sqlQueryRequest struct {
	DatasetID string `json:"dataset_id"`
	SQL       string `json:"sql"`
}

type queryResponse struct {
	DatasetID        string           `json:"dataset_id"`
	SQLQuery         string           `json:"sql_query"`
	Rows             []map[string]any `json:"results"`
	ColumnOrder      []string         `json:"column_order"`
	RowCountReturned int              `json:"row_count"`
	Truncated        bool             `json:"truncated"`
	ExecutionTimeMs  float64          `json:"execution_time_ms"`
}

func handleNaturalQuery(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Gateway == nil || strings.TrimSpace(cfg.AI.APIKey) == "" {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "AI_NOT_CONFIGURED", "language model credentials are not configured", false, nil)
		return
	}
	userID, err := userFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "USER_REQUIRED", err.Error(), false, nil)
		return
	}
	if err := requireRole(r, "query_runner"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request naturalQueryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	dataset, ok := resolveReadyDataset(deps, w, r, userID, request.DatasetID)
	if !ok {
		return
	}

	answer, err := deps.Gateway.Answer(r.Context(), dataset.DataPath, request.Question)
	if err != nil {
		writePipelineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		DatasetID:        dataset.DatasetID,
		SQLQuery:         answer.SQLQuery,
		Rows:             answer.Rows,
		ColumnOrder:      answer.ColumnOrder,
		RowCountReturned: answer.RowCountReturned,
		Truncated:        answer.Truncated,
		ExecutionTimeMs:  answer.ExecutionTimeMs,
	})
}

// handleSQLQuery runs caller-provided SQL through the same validation and
// bounded execution path as synthesized SQL.
func handleSQLQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Executor == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}
	userID, err := userFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "USER_REQUIRED", err.Error(), false, nil)
		return
	}
	if err := requireRole(r, "query_runner"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request sqlQueryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}

	candidate := nlq.CandidateQuery{RawText: request.SQL}
	if verdict := nlq.Validate(candidate); !verdict.Accepted {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_REJECTED", verdict.Reason, false, nil)
		return
	}

	dataset, ok := resolveReadyDataset(deps, w, r, userID, request.DatasetID)
	if !ok {
		return
	}

	result, err := deps.Executor.Execute(r.Context(), candidate, dataset.DataPath)
	if err != nil {
		writePipelineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		DatasetID:        dataset.DatasetID,
		SQLQuery:         request.SQL,
		Rows:             result.Rows,
		ColumnOrder:      result.ColumnOrder,
		RowCountReturned: result.RowCountReturned,
		Truncated:        result.Truncated,
		ExecutionTimeMs:  result.ExecutionTimeMs,
	})
}

// resolveReadyDataset loads the caller's dataset and enforces it is queryable.
// On failure the response has already been written.
func resolveReadyDataset(deps Dependencies, w http.ResponseWriter, r *http.Request, userID, datasetID string) (catalog.Dataset, bool) {
	if deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CATALOG_NOT_CONFIGURED", "catalog is not configured", false, nil)
		return catalog.Dataset{}, false
	}
	if strings.TrimSpace(datasetID) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "DATASET_REQUIRED", "dataset_id is required", false, nil)
		return catalog.Dataset{}, false
	}

	dataset, err := deps.Catalog.GetDataset(r.Context(), userID, datasetID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "DATASET_NOT_FOUND", "dataset not found", false, map[string]any{"dataset_id": datasetID})
			return catalog.Dataset{}, false
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to load dataset", true, map[string]any{"details": err.Error()})
		return catalog.Dataset{}, false
	}
	if dataset.Status != catalog.StatusReady {
		writeError(r.Context(), w, http.StatusConflict, "DATASET_NOT_READY", "dataset is not ready for querying", true, map[string]any{
			"dataset_id": datasetID,
			"status":     string(dataset.Status),
		})
		return catalog.Dataset{}, false
	}
	return dataset, true
}

func writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	var pipelineErr *nlq.Error
	if !errors.As(err, &pipelineErr) {
		writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_EXECUTION_FAILED", err.Error(), false, nil)
		return
	}
	switch pipelineErr.Kind {
	case nlq.KindSchemaUnavailable:
		writeError(r.Context(), w, http.StatusNotFound, "SCHEMA_UNAVAILABLE", pipelineErr.Message, false, nil)
	case nlq.KindSynthesisUnavailable:
		writeError(r.Context(), w, http.StatusInternalServerError, "SYNTHESIS_UNAVAILABLE", pipelineErr.Message, true, nil)
	case nlq.KindRejectedByValidator:
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_REJECTED", pipelineErr.Message, false, nil)
	case nlq.KindQueryTimeout:
		writeError(r.Context(), w, http.StatusRequestTimeout, "QUERY_TIMEOUT", pipelineErr.Message, false, nil)
	default:
		writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_EXECUTION_FAILED", pipelineErr.Message, false, nil)
	}
}
