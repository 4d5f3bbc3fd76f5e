package paidquiz

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatCompletionBody(content string, totalTokens int) map[string]any {
	choices := []map[string]any{}
	if content != "" {
		choices = append(choices, map[string]any{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		})
	}
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini-2024-07-18",
		"choices": choices,
		"usage": map[string]any{
			"prompt_tokens":     totalTokens / 2,
			"completion_tokens": totalTokens - totalTokens/2,
			"total_tokens":      totalTokens,
		},
	}
}

func newChatServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestQuestionMakerGenerate(t *testing.T) {
	var received map[string]any
	srv := newChatServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &received))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletionBody(questionsJSON("science", 2), 321))
	})

	transcriptDir := t.TempDir()
	transcript, err := NewTranscriptRecorder(transcriptDir)
	require.NoError(t, err)

	maker := NewQuestionMaker(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini"}, transcript, nil)
	req := GenerationRequest{Category: "science", Difficulty: DifficultyEasy, Count: 2, Prompt: buildPrompt("science", DifficultyEasy, 2)}

	gen, err := maker.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini-2024-07-18", gen.Model)
	assert.Equal(t, 321, gen.TokensUsed)
	questions, err := parseQuestions(gen.Text)
	require.NoError(t, err)
	assert.Len(t, questions, 2)

	assert.Equal(t, "gpt-4o-mini", received["model"])
	format, ok := received["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
	messages, ok := received["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, req.Prompt, messages[1].(map[string]any)["content"])

	logged, err := os.ReadFile(transcript.Path(req, time.Now()))
	require.NoError(t, err)
	assert.Contains(t, string(logged), "Tokens: 321")
}

func TestQuestionMakerFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
		},
		"no choices": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(chatCompletionBody("", 10))
		},
		"blank content": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(chatCompletionBody("   ", 10))
		},
	}

	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := newChatServer(t, handler)
			maker := NewQuestionMaker(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, nil, nil)

			gen, err := maker.Generate(context.Background(), GenerationRequest{Category: "science", Difficulty: DifficultyEasy, Count: 1, Prompt: "p"})
			assert.Nil(t, gen)
			assert.True(t, errors.Is(err, ErrGenerationFailed), "got %v", err)
		})
	}
}

func TestQuestionMakerTimeout(t *testing.T) {
	srv := newChatServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	maker := NewQuestionMaker(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Timeout: 50 * time.Millisecond}, nil, nil)

	started := time.Now()
	_, err := maker.Generate(context.Background(), GenerationRequest{Category: "science", Difficulty: DifficultyEasy, Count: 1, Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, KindGenerationFailed, KindOf(err))
	assert.Less(t, time.Since(started), time.Second)
}
