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

package app

import (
	"context"
	"errors"
	"fmt"

	"agent-platform/internal/agent/planner"
	"agent-platform/internal/agent/websearch"
	"agent-platform/internal/runtime/jobstore"
	"agent-platform/internal/search"
	"agent-platform/internal/storage/cache"
	"agent-platform/internal/tool/builtin"
	"agent-platform/internal/tool/registry"
	"agent-platform/pkg/config"
	"agent-platform/pkg/log"
	"agent-platform/pkg/retry"
)

// Bootstrap 统一初始化：供 api、worker 与 cli 复用，避免在 cmd 内装配组件
type Bootstrap struct {
	Config  *config.Config
	Logger  *log.Logger
	Planner *planner.Planner
	Tools   *registry.Registry
	Store   jobstore.Store
	Cache   cache.Store
	// Missing 已启用但因缺少凭证或协作方而未注册的工具
	Missing []string
}

// NewBootstrap 根据配置创建 Bootstrap（Models/Search/Tools/Planner/Store）
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	logger, err := log.NewLogger(&log.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	b := &Bootstrap{Config: cfg, Logger: logger}
	if err := b.init(ctx); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bootstrap) init(ctx context.Context) error {
	cfg := b.Config
	limiter := NewRateLimiterFromConfig(cfg)

	plannerModel, err := NewModelClient(cfg, cfg.Model.Defaults.Planner, limiter)
	if err != nil {
		return fmt.Errorf("初始化规划模型失败: %w", err)
	}
	actionModel := plannerModel
	if key := cfg.Model.Defaults.Action; key != "" && key != cfg.Model.Defaults.Planner {
		if actionModel, err = NewModelClient(cfg, key, limiter); err != nil {
			return fmt.Errorf("初始化决策模型失败: %w", err)
		}
	}
	toolModel := plannerModel
	if cfg.Model.Defaults.Tool != "" && cfg.Model.Defaults.Tool != cfg.Model.Defaults.Planner {
		if toolModel, err = NewModelClient(cfg, cfg.Model.Defaults.Tool, limiter); err != nil {
			return fmt.Errorf("初始化工具模型失败: %w", err)
		}
	}
	webModel := toolModel
	if key := cfg.Tools.WebAgent.Model; key != "" {
		if webModel, err = NewModelClient(cfg, key, limiter); err != nil {
			return fmt.Errorf("初始化 Web_Agent_Tool 模型失败: %w", err)
		}
	}
	perplexity, err := NewPerplexityClient(cfg, limiter)
	if err != nil {
		return fmt.Errorf("初始化 Perplexity 客户端失败: %w", err)
	}

	if b.Cache, err = cache.NewCache(ctx, cfg.Search.Cache); err != nil {
		return fmt.Errorf("初始化搜索缓存失败: %w", err)
	}
	searcher, err := search.NewFromConfig(cfg.Search, cfg.Model.Retry, cfg.Model.Timeout, b.Cache, b.Logger)
	if err != nil {
		// 搜索凭证缺失只影响依赖搜索的工具
		b.Logger.Warn("搜索后端不可用", "provider", cfg.Search.Provider, "error", err)
		searcher = nil
	}

	deps := builtin.Dependencies{
		ToolLLM:    toolModel.Client,
		Perplexity: perplexity,
		HTTP:       retry.NewClient(cfg.Model.Retry, cfg.Model.Timeout),
		Options:    toolModel.Options,
		WebAgent: websearch.Config{
			MaxTurns:   cfg.Tools.WebAgent.MaxTurns,
			NumResults: cfg.Search.NumResults,
			Options:    webModel.Options,
		},
		NumResults: cfg.Search.NumResults,
		MaxChars:   cfg.Tools.URLExtractor.MaxChars,
		Logger:     b.Logger,
	}
	if searcher != nil {
		deps.Search = searcher
	}
	if webModel != toolModel {
		deps.WebAgentLLM = webModel.Client
	}
	b.Tools = registry.New()
	b.Missing = builtin.Register(b.Tools, deps, cfg.Tools.Enabled)

	// 决策格式与提示词变体跟随执行 DECIDE 的模型
	format := cfg.Agent.DecisionFormat
	if format == "" {
		format = actionModel.DecisionFormat
	}
	b.Planner, err = planner.New(planner.Options{
		Client:         plannerModel.Client,
		ActionClient:   actionModel.Client,
		Tools:          b.Tools,
		DecisionFormat: format,
		Config: planner.Config{
			MaxSteps:    cfg.Agent.MaxSteps,
			MaxTime:     cfg.Agent.MaxTime,
			MaxTokens:   plannerModel.Options.MaxTokens,
			OutputTypes: cfg.Agent.OutputTypes,
		},
		Logger: b.Logger,
	})
	if err != nil {
		return fmt.Errorf("初始化 Planner 失败: %w", err)
	}

	storeCfg := cfg.JobStore
	if storeCfg.Type == "file" && storeCfg.Dir == "" {
		storeCfg.Dir = cfg.Batch.OutputDir
	}
	if b.Store, err = jobstore.New(ctx, storeCfg); err != nil {
		return fmt.Errorf("初始化 JobStore 失败: %w", err)
	}

	b.Logger.Info("bootstrap ready",
		"planner", cfg.Model.Defaults.Planner,
		"action", b.Planner.ActionModel(),
		"decision_format", b.Planner.DecisionFormat(),
		"tools", b.Tools.Names(),
		"jobstore", storeCfg.Type,
	)
	return nil
}

// Close 释放存储与缓存连接
func (b *Bootstrap) Close() error {
	var errs []error
	if b.Store != nil {
		errs = append(errs, b.Store.Close())
	}
	if b.Cache != nil {
		errs = append(errs, b.Cache.Close())
	}
	return errors.Join(errs...)
}
