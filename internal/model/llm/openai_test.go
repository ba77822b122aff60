// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "agent-platform/pkg/errors"
	"agent-platform/pkg/retry"
)

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, MinWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
}

func TestNewClient_MissingKey(t *testing.T) {
	for _, provider := range []string{"openai", "claude", "gemini", "perplexity", "eino"} {
		_, err := NewClient(ClientConfig{Provider: provider, Model: "m"})
		require.Error(t, err, provider)
		var ce *perrors.ConfigurationError
		require.ErrorAs(t, err, &ce, provider)
		assert.Contains(t, ce.Key, "api_key")
	}
}

func TestNewClient_UnsupportedProvider(t *testing.T) {
	_, err := NewClient(ClientConfig{Provider: "nope", APIKey: "k"})
	assert.True(t, errors.Is(err, perrors.ErrConfiguration))
}

func TestNewVLLMClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(ClientConfig{Provider: "vllm", Model: "m"})
	assert.True(t, errors.Is(err, perrors.ErrConfiguration))
}

func TestOpenAIClient_ChatCompletion(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"<search>q"},"finish_reason":"stop","stop_reason":"</search>"}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(ClientConfig{Provider: "openai", Model: "gpt-x", APIKey: "sk-test", BaseURL: srv.URL, Retry: fastRetry()})
	require.NoError(t, err)

	out, err := c.ChatCompletion(context.Background(), []Message{
		{Role: RoleUser, Content: "look", Images: []Image{{Data: []byte("\x89PNG\r\n\x1a\n"), MIMEType: "image/png"}}},
		{Role: RoleTool, Content: "<information>x</information>"},
	}, GenerateOptions{MaxTokens: 64, Stop: []string{"</search>", "</answer>"}})
	require.NoError(t, err)
	assert.Equal(t, "<search>q", out.Content)
	assert.Equal(t, FinishStop, out.FinishReason)
	assert.Equal(t, "</search>", out.StopReason)

	assert.Equal(t, "gpt-x", body["model"])
	assert.EqualValues(t, 64, body["max_tokens"])
	assert.Equal(t, []any{"</search>", "</answer>"}, body["stop"])
	msgs := body["messages"].([]any)
	first := msgs[0].(map[string]any)
	parts := first["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "image_url", parts[1].(map[string]any)["type"])
	// 非 vLLM 端点不接受无 tool_call_id 的 tool 消息
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestOpenAIClient_NullStopReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"done"},"finish_reason":"stop","stop_reason":null}]}`))
	}))
	defer srv.Close()

	c, err := NewVLLMClient(ClientConfig{Provider: "vllm", Model: "m", BaseURL: srv.URL, Retry: fastRetry()})
	require.NoError(t, err)
	out, err := c.ChatCompletion(context.Background(), SingleUser("hi"), GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "", out.StopReason)
	assert.Equal(t, "vllm", c.Provider())
}

func TestOpenAIClient_RetriesThenRemoteCallError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(ClientConfig{Provider: "openai", APIKey: "k", BaseURL: srv.URL, Retry: fastRetry()})
	require.NoError(t, err)
	_, err = c.GenerateWithContext(context.Background(), "hi", GenerateOptions{})
	var rce *perrors.RemoteCallError
	require.ErrorAs(t, err, &rce)
	assert.Equal(t, 3, rce.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestOpenAIClient_ClientErrorNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(ClientConfig{Provider: "openai", APIKey: "k", BaseURL: srv.URL, Retry: fastRetry()})
	require.NoError(t, err)
	_, err = c.ChatWithContext(context.Background(), SingleUser("hi"), GenerateOptions{})
	assert.True(t, errors.Is(err, perrors.ErrRemoteCall))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestClaudeClient_StopSequence(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"<answer>42"}],"stop_reason":"stop_sequence","stop_sequence":"</answer>"}`))
	}))
	defer srv.Close()

	c, err := NewClaudeClient(ClientConfig{Provider: "claude", APIKey: "k", BaseURL: srv.URL, Retry: fastRetry()})
	require.NoError(t, err)
	out, err := c.ChatCompletion(context.Background(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "q"},
	}, GenerateOptions{Stop: []string{"</answer>"}})
	require.NoError(t, err)
	assert.Equal(t, "<answer>42", out.Content)
	assert.Equal(t, FinishStop, out.FinishReason)
	assert.Equal(t, "</answer>", out.StopReason)
	assert.Equal(t, "be brief", body["system"])
	assert.Len(t, body["messages"], 1)
}

func TestGeminiClient_Parse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-x:generateContent", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"a"},{"text":"b"}]},"finishReason":"MAX_TOKENS"}]}`))
	}))
	defer srv.Close()

	c, err := NewGeminiClient(ClientConfig{Provider: "gemini", Model: "gemini-x", APIKey: "k", BaseURL: srv.URL, Retry: fastRetry()})
	require.NoError(t, err)
	out, err := c.ChatCompletion(context.Background(), SingleUser("q"), GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ab", out.Content)
	assert.Equal(t, FinishLength, out.FinishReason)
}

func TestImageDataURL(t *testing.T) {
	img := Image{Data: []byte("\x89PNG\r\n\x1a\n0000")}
	assert.Contains(t, img.DataURL(), "data:image/png;base64,")
}
