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
	"fmt"
	"strings"
	"time"

	"agent-platform/internal/storage/cache"
	"agent-platform/pkg/log"
	"agent-platform/pkg/metrics"
)

// Cached 为 Provider 加结果缓存并记录调用指标；store 为 nil 时只记录指标
type Cached struct {
	inner  Provider
	store  cache.Store
	ttl    time.Duration
	logger *log.Logger
}

// NewCached 包装 Provider
func NewCached(inner Provider, store cache.Store, ttl time.Duration, logger *log.Logger) *Cached {
	return &Cached{inner: inner, store: store, ttl: ttl, logger: logger.Component("search")}
}

// Name 实现 Provider
func (c *Cached) Name() string { return c.inner.Name() }

func cacheKey(provider, query string, num int) string {
	return fmt.Sprintf("search:%s:%d:%s", provider, num, strings.ToLower(strings.TrimSpace(query)))
}

// Search 实现 Provider；只缓存成功结果
func (c *Cached) Search(ctx context.Context, query string, num int) ([]Result, error) {
	provider := c.inner.Name()
	key := cacheKey(provider, query, num)
	if c.store != nil {
		var hit []Result
		err := c.store.Get(ctx, key, &hit)
		if err == nil {
			metrics.SearchCallTotal.WithLabelValues(provider, "cache_hit").Inc()
			return hit, nil
		}
		if !cache.IsMiss(err) {
			c.logger.Warn("search cache read failed", "error", err)
		}
	}

	results, err := c.inner.Search(ctx, query, num)
	if err != nil {
		metrics.SearchCallTotal.WithLabelValues(provider, "error").Inc()
		c.logger.Warn("search failed", "provider", provider, "error", err)
		return nil, err
	}
	metrics.SearchCallTotal.WithLabelValues(provider, "ok").Inc()
	if c.store != nil {
		if err := c.store.Set(ctx, key, results, c.ttl); err != nil {
			c.logger.Warn("search cache write failed", "error", err)
		}
	}
	return results, nil
}
