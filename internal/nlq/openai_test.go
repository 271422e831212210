package nlq

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testSchema() SchemaSnapshot {
	return SchemaSnapshot{
		Columns: []ColumnDescriptor{
			{Name: "region", DeclaredType: "VARCHAR"},
			{Name: "revenue", DeclaredType: "DOUBLE"},
		},
		SampleRows:      [][]any{{"west", 10.5}},
		RowCountSampled: 1,
	}
}

func TestOpenAISynthesizerReturnsTrimmedSQL(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  SELECT region FROM data  \n"}},
			},
		})
	}))
	defer srv.Close()

	s, err := NewOpenAISynthesizer(OpenAIConfig{BaseURL: srv.URL, APIKey: "test-key", RowLimit: 500})
	if err != nil {
		t.Fatalf("NewOpenAISynthesizer: %v", err)
	}
	candidate, err := s.Synthesize(context.Background(), "revenue by region", testSchema())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if candidate.RawText != "SELECT region FROM data" {
		t.Fatalf("RawText = %q", candidate.RawText)
	}
	if captured["model"] != "gpt-4o-mini" {
		t.Fatalf("model = %v", captured["model"])
	}
	if captured["max_tokens"] != float64(300) {
		t.Fatalf("max_tokens = %v", captured["max_tokens"])
	}
	messages := captured["messages"].([]any)
	user := messages[1].(map[string]any)["content"].(string)
	if !strings.Contains(user, "region (VARCHAR)") {
		t.Fatalf("prompt missing column descriptor: %s", user)
	}
	if !strings.Contains(user, "LIMIT 500") {
		t.Fatalf("prompt missing row limit rule: %s", user)
	}
}

func TestOpenAISynthesizerUpstreamErrorIsSynthesisUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, err := NewOpenAISynthesizer(OpenAIConfig{BaseURL: srv.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewOpenAISynthesizer: %v", err)
	}
	_, err = s.Synthesize(context.Background(), "anything", testSchema())
	if err == nil {
		t.Fatal("expected error")
	}
	if kind, ok := KindOf(err); !ok || kind != KindSynthesisUnavailable {
		t.Fatalf("kind = %v ok = %v", kind, ok)
	}
}

func TestOpenAISynthesizerEmptyCompletionFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "   "}},
			},
		})
	}))
	defer srv.Close()

	s, err := NewOpenAISynthesizer(OpenAIConfig{BaseURL: srv.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewOpenAISynthesizer: %v", err)
	}
	if _, err := s.Synthesize(context.Background(), "anything", testSchema()); err == nil {
		t.Fatal("expected error for empty completion")
	}
}

func TestNewOpenAISynthesizerRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAISynthesizer(OpenAIConfig{BaseURL: "https://api.openai.com"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
