package guard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ppiankov/neurorouter"

	"github.com/ppiankov/guardrace/internal/llm"
	"github.com/ppiankov/guardrace/internal/model"
)

func newTestJudge(t *testing.T, status int, content string) *Judge {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		body, _ := json.Marshal(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		})
		fmt.Fprint(w, string(body))
	}))
	t.Cleanup(srv.Close)
	return NewJudge(llm.New(llm.Endpoint{URL: srv.URL, Model: "judge"}, nil))
}

func TestJudgeAllows(t *testing.T) {
	j := newTestJudge(t, http.StatusOK, `{"allowed":true,"reason":"benign"}`)

	v, err := j.Evaluate(context.Background(), model.NewRequest("hello", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Accepted {
		t.Fatalf("expected acceptance, got %s", v)
	}
}

func TestJudgeRejectsWithFencedJSON(t *testing.T) {
	j := newTestJudge(t, http.StatusOK, "```json\n{\"allowed\":false,\"reason\":\"weapons request\"}\n```")

	v, err := j.Evaluate(context.Background(), model.NewRequest("bad", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Accepted || v.Reason != "weapons request" {
		t.Fatalf("expected rejection with reason, got %s", v)
	}
}

func TestJudgeRejectionWithoutReason(t *testing.T) {
	j := newTestJudge(t, http.StatusOK, `{"allowed":false}`)

	v, _ := j.Evaluate(context.Background(), model.NewRequest("bad", ""))
	if v.Reason != "rejected by content judge" {
		t.Errorf("expected default reason, got %q", v.Reason)
	}
}

func TestJudgeUnparseableIsError(t *testing.T) {
	j := newTestJudge(t, http.StatusOK, "I think this is fine")

	if _, err := j.Evaluate(context.Background(), model.NewRequest("hello", "")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestJudgeMissingAllowedIsError(t *testing.T) {
	j := newTestJudge(t, http.StatusOK, `{"reason":"?"}`)

	if _, err := j.Evaluate(context.Background(), model.NewRequest("hello", "")); err == nil {
		t.Fatal("expected error when allowed field is absent")
	}
}

func TestJudgeRateLimited(t *testing.T) {
	j := newTestJudge(t, http.StatusTooManyRequests, "")

	_, err := j.Evaluate(context.Background(), model.NewRequest("hello", ""))
	if !errors.Is(err, neurorouter.ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}
