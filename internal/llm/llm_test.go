package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/cabinshare/internal/config"
)

func TestCompleteJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization = %q", got)
		}
		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Model != "test-model" || len(req.Messages) != 2 || req.ResponseFormat == nil {
			t.Errorf("request = %+v", req)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"` + "```json\\n{\\\"items\\\":[\\\"Lock door\\\"]}\\n```" + `"}}]}`))
	}))
	defer srv.Close()

	c := New(config.LLMConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", Model: "test-model"})
	var out struct {
		Items []string `json:"items"`
	}
	if err := c.CompleteJSON(context.Background(), "system", "user", &out); err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0] != "Lock door" {
		t.Errorf("items = %v", out.Items)
	}
}

func TestCompleteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	c := New(config.LLMConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	_, err := c.Complete(context.Background(), "s", "u")
	if err == nil || err.Error() != "llm returned status 429: slow down" {
		t.Errorf("err = %v", err)
	}
}

func TestNotConfigured(t *testing.T) {
	c := New(config.LLMConfig{BaseURL: "http://unused"})
	if c.Configured() {
		t.Fatal("expected unconfigured client")
	}
	if _, err := c.Complete(context.Background(), "s", "u"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v", err)
	}
}
