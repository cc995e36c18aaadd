package draft

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/daviddao/autodraft/internal/types"
	"github.com/nalgeon/be"
	"github.com/openai/openai-go/option"
)

type chatRequest struct {
	Model       string  `json:"model"`
	MaxTokens   int64   `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-3.5-turbo",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
}

func newTestGenerator(t *testing.T, handler http.HandlerFunc) *Generator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := New(Options{
		APIKey:        "sk-test",
		BaseURL:       srv.URL + "/",
		ClientOptions: []option.RequestOption{option.WithMaxRetries(0)},
	})
	be.Err(t, err, nil)
	return g
}

func TestPrompt(t *testing.T) {
	got := Prompt(types.Message{Subject: "Meeting tomorrow?", Body: "Can we meet at 3pm?"})
	be.Equal(t, got, "Email subject: Meeting tomorrow?\nEmail body: Can we meet at 3pm?\nSuggest a draft response:")
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Options{})
	be.Err(t, err, "api key")
}

func TestGenerate(t *testing.T) {
	var req chatRequest
	var auth string
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		be.Equal(t, r.URL.Path, "/chat/completions")
		auth = r.Header.Get("Authorization")
		be.Err(t, json.NewDecoder(r.Body).Decode(&req), nil)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completion("\n\n  Sure, 3pm works for me.  \n"))
	})

	got, err := g.Generate(context.Background(), "the prompt")
	be.Err(t, err, nil)
	be.Equal(t, got, "Sure, 3pm works for me.")

	be.Equal(t, auth, "Bearer sk-test")
	be.Equal(t, req.Model, "gpt-3.5-turbo")
	be.Equal(t, req.MaxTokens, int64(150))
	be.Equal(t, req.Temperature, 0.5)
	be.Equal(t, len(req.Messages), 2)
	be.Equal(t, req.Messages[0].Role, "system")
	be.True(t, strings.HasPrefix(req.Messages[0].Content, "You are an email drafting expert."))
	be.Equal(t, req.Messages[1].Role, "user")
	be.Equal(t, req.Messages[1].Content, "the prompt")
}

func TestGenerateTrimsOnlyWhitespace(t *testing.T) {
	for _, raw := range []string{"reply", "  reply", "reply\t\n", "\r\n reply \r\n"} {
		g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(completion(raw))
		})
		got, err := g.Generate(context.Background(), "p")
		be.Err(t, err, nil)
		be.Equal(t, got, "reply")
	}
}

func TestGenerateNoChoices(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		resp := completion("")
		resp["choices"] = []any{}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	_, err := g.Generate(context.Background(), "p")
	be.Err(t, err, ErrNoChoices)
}

func TestGenerateServiceError(t *testing.T) {
	g := newTestGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	})

	_, err := g.Generate(context.Background(), "p")
	be.Err(t, err, "chat completion")
}
