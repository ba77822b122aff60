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
	"time"

	"agent-platform/pkg/metrics"
)

// RateLimitedClient 包装任意 LLM Client，在真实调用前后执行限流并记录调用指标。
type RateLimitedClient struct {
	inner       Client
	rateLimiter *RateLimiter
}

// NewRateLimitedClient 创建带限流的 LLM 客户端。rateLimiter 为 nil 时只记录指标。
func NewRateLimitedClient(inner Client, rateLimiter *RateLimiter) *RateLimitedClient {
	return &RateLimitedClient{inner: inner, rateLimiter: rateLimiter}
}

// GenerateWithContext 实现 Client.GenerateWithContext
func (c *RateLimitedClient) GenerateWithContext(ctx context.Context, prompt string, options GenerateOptions) (string, error) {
	out, err := c.ChatCompletion(ctx, SingleUser(prompt), options)
	if err != nil {
		return "", err
	}
	return out.Content, nil
}

// ChatWithContext 实现 Client.ChatWithContext
func (c *RateLimitedClient) ChatWithContext(ctx context.Context, messages []Message, options GenerateOptions) (string, error) {
	out, err := c.ChatCompletion(ctx, messages, options)
	if err != nil {
		return "", err
	}
	return out.Content, nil
}

// ChatCompletion 实现 Client.ChatCompletion，调用前等待限流许可
func (c *RateLimitedClient) ChatCompletion(ctx context.Context, messages []Message, options GenerateOptions) (*Completion, error) {
	provider := c.inner.Provider()
	if c.rateLimiter != nil {
		start := time.Now()
		if err := c.rateLimiter.Wait(ctx, provider, estimateTokens(messagesText(messages), options.MaxTokens)); err != nil {
			return nil, err
		}
		if waited := time.Since(start); waited > 100*time.Millisecond {
			metrics.RateLimitWaitSeconds.WithLabelValues("llm", provider).Observe(waited.Seconds())
		}
		defer c.rateLimiter.Release(provider)
	}

	out, err := c.inner.ChatCompletion(ctx, messages, options)
	if err != nil {
		metrics.LLMCallTotal.WithLabelValues(provider, "error").Inc()
		return nil, err
	}
	metrics.LLMCallTotal.WithLabelValues(provider, "ok").Inc()
	return out, nil
}

// Model 返回底层 Client 的模型名称。
func (c *RateLimitedClient) Model() string { return c.inner.Model() }

// Provider 返回底层 Client 的提供商名称。
func (c *RateLimitedClient) Provider() string { return c.inner.Provider() }

// estimateTokens 粗略估算请求的 token 数（4 字符 ≈ 1 token）。
func estimateTokens(text string, maxTokens int) int {
	estimated := len(text) / 4
	if maxTokens > 0 {
		estimated += maxTokens
	}
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

// messagesText 将消息列表合并为单一字符串，用于 token 估算。
func messagesText(msgs []Message) string {
	total := 0
	for _, m := range msgs {
		total += len(m.Content)
	}
	buf := make([]byte, 0, total)
	for _, m := range msgs {
		buf = append(buf, m.Content...)
	}
	return string(buf)
}
