package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/careerbot/internal/domain"
)

type capturedRequest struct {
	Model    string           `json:"model"`
	Stream   bool             `json:"stream"`
	Messages []map[string]any `json:"messages"`
	Tools    []map[string]any `json:"tools"`
}

func fakeOpenAI(t *testing.T, handle func(w http.ResponseWriter, req capturedRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req capturedRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		handle(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(t *testing.T, srv *httptest.Server, functions bool) *OpenAI {
	t.Helper()
	p, err := NewOpenAI(OpenAIConfig{
		Name:        ChatGPT,
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/v1",
		Model:       "gpt-test",
		StreamModel: "gpt-stream",
		Functions:   functions,
	})
	require.NoError(t, err)
	return p
}

func writeSSE(w http.ResponseWriter, chunks ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, c := range chunks {
		fmt.Fprintf(w, "data: %s\n\n", c)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

var turns = []domain.Turn{
	{Role: domain.RoleSystem, Content: "sys"},
	{Role: domain.RoleUser, Content: "hi"},
}

func TestOpenAICompleteText(t *testing.T) {
	srv := fakeOpenAI(t, func(w http.ResponseWriter, req capturedRequest) {
		assert.Equal(t, "gpt-test", req.Model)
		assert.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0]["role"])
		assert.Len(t, req.Tools, 1)
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Hello!"},"finish_reason":"stop"}]}`)
	})

	got, err := newTestProvider(t, srv, true).Complete(context.Background(), turns)
	require.NoError(t, err)
	assert.Equal(t, "Hello!", got.Text)
	assert.Nil(t, got.Call)
}

func TestOpenAICompleteFunctionCall(t *testing.T) {
	srv := fakeOpenAI(t, func(w http.ResponseWriter, _ capturedRequest) {
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"","tool_calls":[{"id":"c1","type":"function","function":{"name":"close_chat","arguments":"{\"end_conversation\":\"Thanks, bye!\"}"}}]},"finish_reason":"tool_calls"}]}`)
	})

	got, err := newTestProvider(t, srv, true).Complete(context.Background(), turns)
	require.NoError(t, err)
	require.NotNil(t, got.Call)
	assert.Equal(t, "close_chat", got.Call.Name)
	assert.JSONEq(t, `{"end_conversation":"Thanks, bye!"}`, got.Call.Arguments)
}

func TestOpenAIWithoutFunctions(t *testing.T) {
	srv := fakeOpenAI(t, func(w http.ResponseWriter, req capturedRequest) {
		assert.Empty(t, req.Tools)
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`)
	})

	_, err := newTestProvider(t, srv, false).Complete(context.Background(), turns)
	require.NoError(t, err)
}

func TestOpenAICompleteError(t *testing.T) {
	srv := fakeOpenAI(t, func(w http.ResponseWriter, _ capturedRequest) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})

	_, err := newTestProvider(t, srv, true).Complete(context.Background(), turns)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chatgpt completion")
}

func TestOpenAIStream(t *testing.T) {
	srv := fakeOpenAI(t, func(w http.ResponseWriter, req capturedRequest) {
		assert.Equal(t, "gpt-stream", req.Model)
		assert.True(t, req.Stream)
		writeSSE(w,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"c1","type":"function","function":{"name":"close_chat","arguments":""}}]}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"end_conversation\":"}}]}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"Bye\"}"}}]}}]}`,
		)
	})

	var text, name, args strings.Builder
	for frag, err := range newTestProvider(t, srv, true).Stream(context.Background(), turns) {
		require.NoError(t, err)
		text.WriteString(frag.Text)
		name.WriteString(frag.FunctionName)
		args.WriteString(frag.FunctionArgs)
	}
	assert.Equal(t, "Hello", text.String())
	assert.Equal(t, "close_chat", name.String())
	assert.JSONEq(t, `{"end_conversation":"Bye"}`, args.String())
}

func TestOpenAIStreamRequestError(t *testing.T) {
	srv := fakeOpenAI(t, func(w http.ResponseWriter, _ capturedRequest) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom"}}`)
	})

	var gotErr error
	for _, err := range newTestProvider(t, srv, true).Stream(context.Background(), turns) {
		gotErr = err
	}
	require.Error(t, gotErr)
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{Name: DeepSeek, Model: DefaultDeepSeekModel})
	require.Error(t, err)
}

func TestRegistryResolve(t *testing.T) {
	chat := NewMock(ChatGPT)
	deep := NewMock(DeepSeek)

	reg, err := NewRegistry(ChatGPT, chat, deep)
	require.NoError(t, err)

	assert.Equal(t, DeepSeek, reg.Resolve("deepseek").Name())
	assert.Equal(t, DeepSeek, reg.Resolve(" DeepSeek ").Name())
	assert.Equal(t, ChatGPT, reg.Resolve("").Name())
	assert.Equal(t, ChatGPT, reg.Resolve("gpt-unknown").Name())
	assert.Equal(t, []string{ChatGPT, DeepSeek}, reg.Names())

	_, err = NewRegistry("missing", chat)
	require.Error(t, err)
}

func TestMockScripts(t *testing.T) {
	ctx := context.Background()
	m := NewMock("").
		QueueCompletion(Completion{Text: "first"}).
		QueueStream(Fragment{Text: "a"}, Fragment{Text: "b"})

	got, err := m.Complete(ctx, turns)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Text)

	got, err = m.Complete(ctx, turns)
	require.NoError(t, err)
	assert.Contains(t, got.Text, "You said: hi")

	var parts []string
	for frag, err := range m.Stream(ctx, turns) {
		require.NoError(t, err)
		parts = append(parts, frag.Text)
	}
	assert.Equal(t, []string{"a", "b"}, parts)
	assert.Equal(t, 3, m.Calls())

	m.FailWith(errors.New("offline"))
	_, err = m.Complete(ctx, turns)
	assert.EqualError(t, err, "offline")
}
