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

package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"agent-platform/internal/api/http"
	"agent-platform/internal/api/http/middleware"
	"agent-platform/internal/app"
	"agent-platform/pkg/log"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App API 应用（装配 HTTP Router、Handler、Middleware）
type App struct {
	config       *app.Bootstrap
	handler      *http.Handler
	router       *http.Router
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
}

// Options API 服务的可选参数
type Options struct {
	// SolveRPS /api/solve 的全局限流，0 表示不限
	SolveRPS   float64
	SolveBurst int
}

// NewApp 创建 API 应用（由 cmd/api 与 cli serve 调用）
func NewApp(bootstrap *app.Bootstrap, opts Options) (*App, error) {
	if bootstrap == nil || bootstrap.Planner == nil {
		return nil, fmt.Errorf("api: bootstrap with planner is required")
	}
	handler := http.NewHandler(bootstrap.Planner, bootstrap.Store, bootstrap.Tools, bootstrap.Logger)
	cfg := bootstrap.Config
	handler.SetLimits(http.Limits{MaxSteps: cfg.Agent.MaxSteps, MaxTime: cfg.Agent.MaxTime, ImageRoot: cfg.API.ImageRoot})
	router := http.NewRouter(handler, middleware.NewMiddleware(bootstrap.Logger))
	router.SetRateLimit(opts.SolveRPS, opts.SolveBurst)
	return &App{config: bootstrap, handler: handler, router: router}, nil
}

// Run 启动 HTTP 服务，addr 如 ":8080"；阻塞直到服务退出
func (a *App) Run(addr string) error {
	a.config.Logger.Info("API 服务启动", "addr", addr)

	// 使用 Hertz slog 扩展，与 bootstrap 配置对齐
	cfg := a.config.Config
	output, err := log.OpenOutput(&log.Config{File: cfg.Log.File})
	if err != nil {
		return fmt.Errorf("打开日志文件失败: %w", err)
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(log.ParseLevel(cfg.Log.Level))
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))

	// 可选：启用链路追踪（OpenTelemetry）
	tracing := cfg.Monitoring.Tracing
	endpoint := tracing.ExportEndpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if tracing.Enable && endpoint != "" {
		serviceName := tracing.ServiceName
		if serviceName == "" {
			serviceName = "agent-platform"
		}
		opts := []provider.Option{
			provider.WithServiceName(serviceName),
			provider.WithExportEndpoint(endpoint),
		}
		if tracing.Insecure {
			opts = append(opts, provider.WithInsecure())
		}
		a.otelProvider = provider.NewOpenTelemetryProvider(opts...)
		tracerOpt, tcfg := hertztracing.NewServerTracer()
		a.hertz = a.router.Build(addr, tracerOpt)
		a.hertz.Use(hertztracing.ServerMiddleware(tcfg))
		a.config.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", endpoint)
	} else {
		a.hertz = a.router.Build(addr)
	}
	return a.hertz.Run()
}

// Shutdown 优雅关闭：停止接收请求并等待异步会话结束（传入 ctx 以支持超时）
func (a *App) Shutdown(ctx context.Context) error {
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			return err
		}
	}
	done := make(chan struct{})
	go func() {
		a.handler.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.config.Logger.Warn("异步会话未在超时前结束", "error", ctx.Err())
	}
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	return a.config.Close()
}
