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

package middleware

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"golang.org/x/time/rate"

	"agent-platform/pkg/log"
)

// Middleware 中间件管理器
type Middleware struct {
	logger *log.Logger
}

// NewMiddleware 创建新的中间件管理器
func NewMiddleware(logger *log.Logger) *Middleware {
	return &Middleware{logger: logger.Component("access")}
}

// CORS CORS 中间件
func (m *Middleware) CORS() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if string(c.Method()) == consts.MethodOptions {
			c.AbortWithStatus(consts.StatusNoContent)
			return
		}
		c.Next(ctx)
	}
}

// RateLimit 全局令牌桶限流；rps <= 0 时不限流
func (m *Middleware) RateLimit(rps float64, burst int) app.HandlerFunc {
	if rps <= 0 {
		return func(ctx context.Context, c *app.RequestContext) { c.Next(ctx) }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(ctx context.Context, c *app.RequestContext) {
		if !limiter.Allow() {
			c.JSON(consts.StatusTooManyRequests, map[string]string{
				"error": "too many requests",
			})
			c.Abort()
			return
		}
		c.Next(ctx)
	}
}

// AccessLog 记录每个请求的方法、路径、状态码与耗时
func (m *Middleware) AccessLog() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)
		m.logger.Info("request",
			"method", string(c.Method()),
			"path", string(c.Path()),
			"status", c.Response.StatusCode(),
			"client_ip", c.ClientIP(),
			"latency", time.Since(start),
		)
	}
}
