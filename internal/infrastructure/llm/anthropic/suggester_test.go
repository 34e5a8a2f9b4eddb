package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
)

func messageResponse(text string) map[string]any {
	return map[string]any{
		"id":            "msg_test",
		"type":          "message",
		"role":          "assistant",
		"model":         "claude-test",
		"content":       []map[string]any{{"type": "text", "text": text}},
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage":         map[string]any{"input_tokens": 10, "output_tokens": 5},
	}
}

func TestSuggestParsesTextBlocks(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel, _ = body["model"].(string)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messageResponse(
			"Here you go: {\"tags\":[{\"name\":\"Contract\",\"confidence\":0.8}],\"queue_id\":\"unknown\",\"confidence\":0.8,\"summary\":\"nda\"}",
		))
	}))
	defer server.Close()

	s, err := NewSuggester(Options{APIKey: "test", Model: "claude-test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new suggester: %v", err)
	}
	got, err := s.Suggest(context.Background(), ports.SuggestionInput{FileName: "nda.pdf", MimeType: "application/pdf"})
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if gotModel != "claude-test" {
		t.Fatalf("unexpected model %q", gotModel)
	}
	if got.Tags()[0].TagName.String() != "Contract" {
		t.Fatalf("unexpected tags %+v", got.Tags())
	}
	if got.SuggestedQueueID() != "" {
		t.Fatalf("queues that were not offered must be dropped, got %q", got.SuggestedQueueID())
	}
}

func TestSuggestMapsOverloadToTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{RetryMaxAttempts: 1})
	s, err := NewSuggester(Options{APIKey: "test", Model: "claude-test", BaseURL: server.URL, Executor: exec, Timeout: time.Second})
	if err != nil {
		t.Fatalf("new suggester: %v", err)
	}
	_, err = s.Suggest(context.Background(), ports.SuggestionInput{FileName: "a.pdf"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestNewSuggesterValidates(t *testing.T) {
	if _, err := NewSuggester(Options{Model: "m"}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input without key, got %v", err)
	}
}
