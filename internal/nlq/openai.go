package nlq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenAIConfig struct {
	BaseURL         string
	APIKey          string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	RowLimit        int
	Timeout         time.Duration
}

// OpenAISynthesizer calls an OpenAI-compatible chat completions endpoint.
// Any transport failure, non-success status, or empty completion surfaces as
// KindSynthesisUnavailable; the raw completion is never retried or repaired.
type OpenAISynthesizer struct {
	baseURL         string
	apiKey          string
	model           string
	temperature     float64
	maxOutputTokens int
	rowLimit        int
	client          *http.Client
}

func NewOpenAISynthesizer(cfg OpenAIConfig) (*OpenAISynthesizer, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	maxTokens := cfg.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 300
	}
	rowLimit := cfg.RowLimit
	if rowLimit <= 0 {
		rowLimit = 10000
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenAISynthesizer{
		baseURL:         strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:          strings.TrimSpace(cfg.APIKey),
		model:           model,
		temperature:     cfg.Temperature,
		maxOutputTokens: maxTokens,
		rowLimit:        rowLimit,
		client:          &http.Client{Timeout: timeout},
	}, nil
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, question string, schema SchemaSnapshot) (CandidateQuery, error) {
	payload := buildCompletionPayload(s.model, s.temperature, s.maxOutputTokens, s.rowLimit, question, schema)
	body, err := json.Marshal(payload)
	if err != nil {
		return CandidateQuery{}, SynthesisUnavailable("marshal chat payload", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return CandidateQuery{}, SynthesisUnavailable("build chat request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return CandidateQuery{}, SynthesisUnavailable("request chat completion", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return CandidateQuery{}, SynthesisUnavailable("read chat response body", err)
	}
	if resp.StatusCode >= 400 {
		return CandidateQuery{}, SynthesisUnavailable(
			fmt.Sprintf("chat completion failed status=%d body=%s", resp.StatusCode, string(rawRespBody)), nil)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return CandidateQuery{}, SynthesisUnavailable("decode chat completion response", err)
	}
	if len(parsed.Choices) == 0 {
		return CandidateQuery{}, SynthesisUnavailable("empty chat completion choices", nil)
	}

	raw := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if raw == "" {
		return CandidateQuery{}, SynthesisUnavailable("model returned empty SQL", nil)
	}
	return CandidateQuery{RawText: raw}, nil
}

// buildCompletionPayload renders a deterministic prompt for a given question
// and schema snapshot: same inputs, same bytes on the wire.
func buildCompletionPayload(model string, temperature float64, maxTokens, rowLimit int, question string, schema SchemaSnapshot) map[string]any {
	systemPrompt := "You are a SQL expert. You translate analytics questions into DuckDB SQL. " +
		"DuckDB uses PostgreSQL-like syntax. Return ONLY SQL. No markdown, no explanation."

	var b strings.Builder
	b.WriteString("Convert this question into a single DuckDB SQL query against a table named 'data'.\n\n")
	b.WriteString("Columns:\n")
	for _, col := range schema.Columns {
		fmt.Fprintf(&b, "- %s (%s)\n", col.Name, col.DeclaredType)
	}
	if len(schema.SampleRows) > 0 {
		b.WriteString("\nSample rows:\n")
		for _, row := range schema.SampleRows {
			cells := make([]string, len(row))
			for i, cell := range row {
				cells[i] = fmt.Sprintf("%v", cell)
			}
			fmt.Fprintf(&b, "(%s)\n", strings.Join(cells, ", "))
		}
	}
	fmt.Fprintf(&b, "\nRules:\n- A single SELECT statement only.\n- Use only the listed columns.\n- Include LIMIT %d or lower.\n- Output plain SQL with no markdown fences and no prose.\n", rowLimit)
	fmt.Fprintf(&b, "\nQuestion:\n%s\n", strings.TrimSpace(question))

	return map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": b.String()},
		},
		"temperature": temperature,
		"max_tokens":  maxTokens,
	}
}
