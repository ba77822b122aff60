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

// Package retry 远程调用的有界重试：指数退避 + 随机抖动，次数封顶
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	perrors "agent-platform/pkg/errors"
)

// Policy 重试策略；零值字段使用 DefaultPolicy 对应值
type Policy struct {
	MaxAttempts int           `mapstructure:"max_attempts"` // 含首次
	MinWait     time.Duration `mapstructure:"min_wait"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// DefaultPolicy 默认策略：5 次，3s 起步，8s 封顶，倍率 1.5
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, MinWait: 3 * time.Second, MaxWait: 8 * time.Second, Multiplier: 1.5}
}

// Normalize 用默认值补齐零值字段
func (p Policy) Normalize() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.MinWait <= 0 {
		p.MinWait = d.MinWait
	}
	if p.MaxWait <= 0 {
		p.MaxWait = d.MaxWait
	}
	if p.MaxWait < p.MinWait {
		p.MaxWait = p.MinWait
	}
	if p.Multiplier <= 1 {
		p.Multiplier = d.Multiplier
	}
	return p
}

// Backoff 第 attempt 次失败（从 1 开始）后的等待时长，落在 [base/2, base]，base 封顶 MaxWait
func Backoff(p Policy, attempt int) time.Duration {
	p = p.Normalize()
	if attempt < 1 {
		attempt = 1
	}
	base := float64(p.MinWait) * math.Pow(p.Multiplier, float64(attempt-1))
	if base > float64(p.MaxWait) {
		base = float64(p.MaxWait)
	}
	half := base / 2
	return time.Duration(half + rand.Float64()*half)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 标记不应重试的错误
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do 按策略执行 op；重试耗尽或遇到 Permanent 错误时返回 *errors.RemoteCallError
func Do(ctx context.Context, p Policy, op, provider string, fn func(ctx context.Context) error) error {
	p = p.Normalize()
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		var perm *permanentError
		if errors.As(err, &perm) {
			return &perrors.RemoteCallError{Op: op, Provider: provider, Attempts: attempt, Err: perm.err}
		}
		if attempt == p.MaxAttempts {
			break
		}
		timer := time.NewTimer(Backoff(p, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return &perrors.RemoteCallError{Op: op, Provider: provider, Attempts: attempt, Err: ctx.Err()}
		case <-timer.C:
		}
	}
	return &perrors.RemoteCallError{Op: op, Provider: provider, Attempts: p.MaxAttempts, Err: lastErr}
}

// Retryable HTTP 状态是否值得重试：429 与 5xx
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// NewClient 创建带重试策略的 resty 客户端。resty 的 RetryCount 不含首次。
func NewClient(p Policy, timeout time.Duration) *resty.Client {
	p = p.Normalize()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(p.MaxAttempts - 1)
	client.SetRetryWaitTime(p.MinWait)
	client.SetRetryMaxWaitTime(p.MaxWait)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r != nil && Retryable(r.StatusCode())
	})
	return client
}

// Attempts 返回 resty 响应实际发起的次数
func Attempts(resp *resty.Response) int {
	if resp == nil || resp.Request == nil || resp.Request.Attempt < 1 {
		return 1
	}
	return resp.Request.Attempt
}
