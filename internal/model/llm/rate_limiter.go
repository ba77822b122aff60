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
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimitConfig 单个 Provider 的限流配置
type LimitConfig struct {
	TokensPerMinute   int
	RequestsPerMinute float64
	MaxConcurrent     int
}

// RateLimiter Provider 维度的限流器：请求速率 + token 预算 + 并发上限。
// 批处理并发跑多个会话时共享同一个实例。
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*providerLimiter
	defaults LimitConfig
}

type providerLimiter struct {
	requests  *rate.Limiter
	tokens    *rate.Limiter
	semaphore chan struct{}
	config    LimitConfig

	mu          sync.Mutex
	tokensUsed  int
	windowStart time.Time
}

// Stats 限流器当前状态
type Stats struct {
	RequestsPerMinute float64 `json:"requests_per_minute"`
	TokensPerMinute   int     `json:"tokens_per_minute"`
	TokensUsedMinute  int     `json:"tokens_used_minute"`
	InFlight          int     `json:"in_flight"`
	MaxConcurrent     int     `json:"max_concurrent"`
}

// NewRateLimiter 创建限流器；未配置的 provider 使用 defaults（nil 时为宽松默认值）
func NewRateLimiter(configs map[string]LimitConfig, defaults *LimitConfig) *RateLimiter {
	d := LimitConfig{TokensPerMinute: 90000, RequestsPerMinute: 3500, MaxConcurrent: 50}
	if defaults != nil {
		d = *defaults
	}
	l := &RateLimiter{limiters: make(map[string]*providerLimiter), defaults: d}
	for provider, cfg := range configs {
		l.limiters[provider] = newProviderLimiter(cfg)
	}
	return l
}

func newProviderLimiter(cfg LimitConfig) *providerLimiter {
	p := &providerLimiter{config: cfg, windowStart: time.Now()}
	if cfg.RequestsPerMinute > 0 {
		// burst 为 2 秒配额
		burst := int(cfg.RequestsPerMinute / 60.0 * 2)
		if burst < 1 {
			burst = 1
		}
		p.requests = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), burst)
	}
	if cfg.TokensPerMinute > 0 {
		burst := cfg.TokensPerMinute / 60 * 2
		if burst < 1 {
			burst = 1
		}
		p.tokens = rate.NewLimiter(rate.Limit(float64(cfg.TokensPerMinute)/60.0), burst)
	}
	if cfg.MaxConcurrent > 0 {
		p.semaphore = make(chan struct{}, cfg.MaxConcurrent)
	}
	return p
}

func (l *RateLimiter) get(provider string) *providerLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.limiters[provider]
	if !ok {
		p = newProviderLimiter(l.defaults)
		l.limiters[provider] = p
	}
	return p
}

// Wait 阻塞直到请求可执行；成功返回后必须调用 Release
func (l *RateLimiter) Wait(ctx context.Context, provider string, estimatedTokens int) error {
	p := l.get(provider)

	if p.requests != nil {
		if err := p.requests.Wait(ctx); err != nil {
			return fmt.Errorf("request rate limit wait failed: %w", err)
		}
	}
	if p.tokens != nil && estimatedTokens > 0 {
		n := estimatedTokens
		// WaitN 不接受超过 burst 的请求
		if n > p.tokens.Burst() {
			n = p.tokens.Burst()
		}
		if err := p.tokens.WaitN(ctx, n); err != nil {
			return fmt.Errorf("token budget wait failed: %w", err)
		}
	}
	if p.semaphore != nil {
		select {
		case p.semaphore <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.record(estimatedTokens)
	return nil
}

// Release 释放并发名额
func (l *RateLimiter) Release(provider string) {
	p := l.get(provider)
	if p.semaphore == nil {
		return
	}
	select {
	case <-p.semaphore:
	default:
	}
}

func (p *providerLimiter) record(tokens int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	if now.Sub(p.windowStart) > time.Minute {
		p.tokensUsed = tokens
		p.windowStart = now
		return
	}
	p.tokensUsed += tokens
}

// Stats 返回 provider 的限流统计
func (l *RateLimiter) Stats(provider string) Stats {
	p := l.get(provider)
	p.mu.Lock()
	used := p.tokensUsed
	p.mu.Unlock()
	s := Stats{
		RequestsPerMinute: p.config.RequestsPerMinute,
		TokensPerMinute:   p.config.TokensPerMinute,
		TokensUsedMinute:  used,
		MaxConcurrent:     p.config.MaxConcurrent,
	}
	if p.semaphore != nil {
		s.InFlight = len(p.semaphore)
	}
	return s
}
