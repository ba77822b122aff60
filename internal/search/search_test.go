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

package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-platform/internal/storage/cache"
	"agent-platform/pkg/config"
	perrors "agent-platform/pkg/errors"
	"agent-platform/pkg/retry"
)

var fastRetry = retry.Policy{MaxAttempts: 2, MinWait: time.Millisecond, MaxWait: 2 * time.Millisecond}

func TestGoogle_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "golang", r.URL.Query().Get("q"))
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		assert.Equal(t, "cx1", r.URL.Query().Get("cx"))
		assert.Equal(t, "10", r.URL.Query().Get("num"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"title":"Go","link":"https://go.dev","snippet":"The Go language"}]}`))
	}))
	defer srv.Close()

	g, err := NewGoogle(GoogleOptions{APIKey: "k", CX: "cx1", BaseURL: srv.URL, Retry: fastRetry})
	require.NoError(t, err)
	got, err := g.Search(context.Background(), "golang", 50)
	require.NoError(t, err)
	assert.Equal(t, []Result{{Title: "Go", Link: "https://go.dev", Snippet: "The Go language"}}, got)
}

func TestGoogle_NoItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"searchInformation":{"totalResults":"0"}}`))
	}))
	defer srv.Close()
	g, err := NewGoogle(GoogleOptions{APIKey: "k", CX: "c", BaseURL: srv.URL, Retry: fastRetry})
	require.NoError(t, err)
	got, err := g.Search(context.Background(), "zzz", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Contains(t, Format(got, nil), "No results found.")
}

func TestGoogle_RetriesThenRemoteError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	g, err := NewGoogle(GoogleOptions{APIKey: "k", CX: "c", BaseURL: srv.URL, Retry: fastRetry})
	require.NoError(t, err)
	_, err = g.Search(context.Background(), "q", 3)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrRemoteCall))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestNewGoogle_MissingCredentials(t *testing.T) {
	_, err := NewGoogle(GoogleOptions{CX: "c"})
	assert.True(t, perrors.Is(err, perrors.ErrConfiguration))
	_, err = NewGoogle(GoogleOptions{APIKey: "k"})
	assert.True(t, perrors.Is(err, perrors.ErrConfiguration))
}

func TestBrave_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "5", r.URL.Query().Get("count"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"web":{"results":[{"title":"T","url":"https://x","description":"D"}]}}`))
	}))
	defer srv.Close()
	b, err := NewBrave(BraveOptions{APIKey: "tok", BaseURL: srv.URL, Retry: fastRetry})
	require.NoError(t, err)
	got, err := b.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Equal(t, []Result{{Title: "T", Link: "https://x", Snippet: "D"}}, got)
}

type countingProvider struct {
	calls int
	err   error
}

func (c *countingProvider) Name() string { return "fake" }
func (c *countingProvider) Search(ctx context.Context, query string, num int) ([]Result, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []Result{{Title: query}}, nil
}

func TestCached_HitsStore(t *testing.T) {
	inner := &countingProvider{}
	c := NewCached(inner, cache.NewMemoryStore(), time.Hour, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, err := c.Search(ctx, "Go ", 5)
		require.NoError(t, err)
		assert.Equal(t, "Go ", got[0].Title)
	}
	_, _ = c.Search(ctx, "go", 5)
	assert.Equal(t, 1, inner.calls)
	_, _ = c.Search(ctx, "go", 6)
	assert.Equal(t, 2, inner.calls)
}

func TestCached_DoesNotCacheErrors(t *testing.T) {
	inner := &countingProvider{err: errors.New("boom")}
	c := NewCached(inner, cache.NewMemoryStore(), time.Hour, nil)
	_, err := c.Search(context.Background(), "q", 1)
	require.Error(t, err)
	_, _ = c.Search(context.Background(), "q", 1)
	assert.Equal(t, 2, inner.calls)
}

func TestFormat(t *testing.T) {
	assert.Contains(t, Format(nil, errors.New("down")), "An error occurred: down")
	out := Format([]Result{{Title: "a", Link: "b", Snippet: "c"}}, nil)
	assert.Contains(t, out, `"link": "b"`)
}

func TestNewFromConfig(t *testing.T) {
	_, err := NewFromConfig(config.SearchConfig{Provider: "google"}, fastRetry, 0, nil, nil)
	assert.True(t, perrors.Is(err, perrors.ErrConfiguration))

	p, err := NewFromConfig(config.SearchConfig{Provider: "brave", Brave: config.BraveConfig{APIKey: "x"}}, fastRetry, 0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "brave", p.Name())

	_, err = NewFromConfig(config.SearchConfig{Provider: "bing"}, fastRetry, 0, nil, nil)
	assert.Error(t, err)
}
