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

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需要真实 Redis：TEST_REDIS_ADDR=localhost:6379 go test ./internal/storage/cache/...
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	s, err := DialRedis(ctx, addr, "", 0)
	require.NoError(t, err)
	defer s.Close()
	s.prefix = DefaultKeyPrefix + "test:"
	require.NoError(t, s.Clear(ctx))

	require.NoError(t, s.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))
	ok, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	var got map[string]int
	require.NoError(t, s.Get(ctx, "k", &got))
	assert.Equal(t, 1, got["a"])

	require.NoError(t, s.Clear(ctx))
	assert.True(t, IsMiss(s.Get(ctx, "k", &got)))
}
