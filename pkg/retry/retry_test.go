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

package retry

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

	perrors "agent-platform/pkg/errors"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, MinWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
}

func TestBackoff_Bounds(t *testing.T) {
	p := DefaultPolicy()
	for attempt := 1; attempt <= 8; attempt++ {
		d := Backoff(p, attempt)
		assert.GreaterOrEqual(t, d, p.MinWait/2, "attempt %d", attempt)
		assert.LessOrEqual(t, d, p.MaxWait, "attempt %d", attempt)
	}
}

func TestNormalize_Defaults(t *testing.T) {
	p := Policy{}.Normalize()
	assert.Equal(t, DefaultPolicy(), p)
	p = Policy{MinWait: 10 * time.Second, MaxWait: time.Second}.Normalize()
	assert.Equal(t, p.MinWait, p.MaxWait)
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastPolicy(3), "chat", "fake", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustedReturnsRemoteCallError(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastPolicy(4), "chat", "fake", func(ctx context.Context) error {
		calls++
		return errors.New("down")
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	var rce *perrors.RemoteCallError
	require.ErrorAs(t, err, &rce)
	assert.Equal(t, 4, rce.Attempts)
	assert.Equal(t, "chat", rce.Op)
	assert.True(t, errors.Is(err, perrors.ErrRemoteCall))
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastPolicy(5), "search", "google", func(ctx context.Context) error {
		calls++
		return Permanent(errors.New("bad request"))
	})
	var rce *perrors.RemoteCallError
	require.ErrorAs(t, err, &rce)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rce.Attempts)
	assert.EqualError(t, rce.Err, "bad request")
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, Policy{MaxAttempts: 3, MinWait: time.Second, MaxWait: time.Second}, "chat", "fake", func(ctx context.Context) error {
		return errors.New("x")
	})
	var rce *perrors.RemoteCallError
	require.ErrorAs(t, err, &rce)
	assert.ErrorIs(t, rce.Err, context.Canceled)
}

func TestNewClient_RetriesOn5xx(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	client := NewClient(fastPolicy(5), time.Second)
	resp, err := client.R().Get(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	assert.Equal(t, 3, Attempts(resp))
}

func TestNewClient_StopsAtMaxAttempts(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(fastPolicy(2), time.Second)
	resp, err := client.R().Get(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode())
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(429))
	assert.True(t, Retryable(502))
	assert.False(t, Retryable(400))
	assert.False(t, Retryable(200))
}
