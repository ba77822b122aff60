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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-platform/pkg/config"
	perrors "agent-platform/pkg/errors"
)

func TestMemoryStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Set(ctx, "k1", "v1", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var v string
	if err := s.Get(ctx, "k1", &v); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "v1" {
		t.Errorf("Get: got %q", v)
	}
	if err := s.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Get(ctx, "k1", &v); !IsMiss(err) {
		t.Errorf("Get after Delete should miss, got %v", err)
	}
	if err := s.Delete(ctx, "k1"); err != nil {
		t.Errorf("Delete missing should be a no-op: %v", err)
	}
}

func TestMemoryStore_MissIsNotFound(t *testing.T) {
	var v string
	err := NewMemoryStore().Get(context.Background(), "missing", &v)
	assert.True(t, IsMiss(err))
	assert.True(t, perrors.Is(err, perrors.ErrNotFound))
}

func TestMemoryStore_Structs(t *testing.T) {
	type item struct {
		Title string `json:"title"`
		Link  string `json:"link"`
	}
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "q", []item{{Title: "a", Link: "b"}}, time.Hour))
	var got []item
	require.NoError(t, s.Get(ctx, "q", &got))
	assert.Equal(t, []item{{Title: "a", Link: "b"}}, got)
}

func TestMemoryStore_Expiration(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))
	ok, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	ok, _ = s.Exists(ctx, "k")
	assert.False(t, ok)
	var v string
	assert.True(t, IsMiss(s.Get(ctx, "k", &v)))
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Set(ctx, "k1", "v1", 0)
	require.NoError(t, s.Clear(ctx))
	var v string
	assert.True(t, IsMiss(s.Get(ctx, "k1", &v)))
}

func TestNewCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewCache(ctx, config.CacheConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, c)

	c, err = NewCache(ctx, config.CacheConfig{Type: "none"})
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = NewCache(ctx, config.CacheConfig{Type: "memcached"})
	assert.Error(t, err)
}
