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

// Package llmtest 提供按脚本回放的 llm.Client，供各包测试使用
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"agent-platform/internal/model/llm"
)

// Reply 一次脚本化回复
type Reply struct {
	Content      string
	FinishReason string
	StopReason   string
	Err          error
}

// Text 返回以 stop 结束、未命中停止序列的回复
func Text(s string) Reply { return Reply{Content: s, FinishReason: llm.FinishStop} }

// Stopped 返回命中停止序列 marker 的回复（内容不含 marker）
func Stopped(s, marker string) Reply {
	return Reply{Content: s, FinishReason: llm.FinishStop, StopReason: marker}
}

// Fail 返回错误
func Fail(err error) Reply { return Reply{Err: err} }

// Call 记录一次调用
type Call struct {
	Messages []llm.Message
	Options  llm.GenerateOptions
}

// Client 按顺序回放 Reply；脚本耗尽后返回错误
type Client struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call
	// Respond 非 nil 时优先于脚本，用于根据输入动态回复
	Respond func(messages []llm.Message, opts llm.GenerateOptions) Reply
}

// New 创建脚本客户端
func New(replies ...Reply) *Client {
	return &Client{replies: replies}
}

// GenerateWithContext 实现 llm.Client
func (c *Client) GenerateWithContext(ctx context.Context, prompt string, options llm.GenerateOptions) (string, error) {
	out, err := c.ChatCompletion(ctx, llm.SingleUser(prompt), options)
	if err != nil {
		return "", err
	}
	return out.Content, nil
}

// ChatWithContext 实现 llm.Client
func (c *Client) ChatWithContext(ctx context.Context, messages []llm.Message, options llm.GenerateOptions) (string, error) {
	out, err := c.ChatCompletion(ctx, messages, options)
	if err != nil {
		return "", err
	}
	return out.Content, nil
}

// ChatCompletion 实现 llm.Client
func (c *Client) ChatCompletion(ctx context.Context, messages []llm.Message, options llm.GenerateOptions) (*llm.Completion, error) {
	c.mu.Lock()
	copied := make([]llm.Message, len(messages))
	copy(copied, messages)
	c.calls = append(c.calls, Call{Messages: copied, Options: options})
	var r Reply
	switch {
	case c.Respond != nil:
		c.mu.Unlock()
		r = c.Respond(copied, options)
	case len(c.replies) == 0:
		c.mu.Unlock()
		return nil, fmt.Errorf("llmtest: script exhausted after %d calls", len(c.calls)-1)
	default:
		r = c.replies[0]
		c.replies = c.replies[1:]
		c.mu.Unlock()
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return &llm.Completion{Content: r.Content, FinishReason: r.FinishReason, StopReason: r.StopReason}, nil
}

// Model 实现 llm.Client
func (c *Client) Model() string { return "scripted" }

// Provider 实现 llm.Client
func (c *Client) Provider() string { return "llmtest" }

// Calls 返回已记录的调用
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// Remaining 返回尚未消费的脚本条数
func (c *Client) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.replies)
}
