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

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"agent-platform/internal/app"
	"agent-platform/internal/batch"
	"agent-platform/internal/scoring"
	"agent-platform/pkg/log"
	"agent-platform/pkg/utils"
)

// App 批量求解与评分进程：读取数据集，并发运行会话，保存记录并输出评分报告
type App struct {
	config *app.Bootstrap
	logger *log.Logger
}

// BatchOptions 一次批量运行的参数；零值字段取 batch 配置
type BatchOptions struct {
	DataFile     string
	Concurrency  int
	SkipExisting bool
	MaxSteps     int
	MaxTime      time.Duration
	OutputDir    string
	// Score 批量结束后立即评分
	Score bool
}

// ScoreOptions 评分参数；零值字段取 scoring 配置
type ScoreOptions struct {
	DataFile     string
	ResponseType string
	MaxWorkers   int
	OutputDir    string
}

// NewApp 创建 worker 应用（由 cmd/worker 与 cli 调用）
func NewApp(bootstrap *app.Bootstrap) *App {
	return &App{config: bootstrap, logger: bootstrap.Logger.Component("worker")}
}

func (a *App) batchDefaults(opts BatchOptions) BatchOptions {
	cfg := a.config.Config.Batch
	opts.DataFile = utils.CoalesceString(opts.DataFile, cfg.DataFile)
	opts.Concurrency = utils.DefaultInt(opts.Concurrency, cfg.Concurrency)
	opts.OutputDir = utils.CoalesceString(opts.OutputDir, cfg.OutputDir)
	opts.SkipExisting = opts.SkipExisting || cfg.Skip
	return opts
}

// RunBatch 求解数据集中的全部题目；opts.Score 为 true 时随后评分
func (a *App) RunBatch(ctx context.Context, opts BatchOptions) (*batch.Summary, *scoring.Report, error) {
	opts = a.batchDefaults(opts)
	if opts.DataFile == "" {
		return nil, nil, fmt.Errorf("batch: data file is required")
	}
	problems, err := batch.LoadProblems(opts.DataFile)
	if err != nil {
		return nil, nil, err
	}
	a.logger.Info("batch start", "data_file", opts.DataFile, "problems", len(problems), "concurrency", opts.Concurrency)

	runner := batch.NewRunner(a.config.Planner, a.config.Store, batch.Options{
		Concurrency:  opts.Concurrency,
		SkipExisting: opts.SkipExisting,
		MaxSteps:     opts.MaxSteps,
		MaxTime:      opts.MaxTime,
	}, a.config.Logger)
	sum, err := runner.Run(ctx, problems)
	if sum != nil && opts.OutputDir != "" {
		if werr := writeJSON(filepath.Join(opts.OutputDir, "batch_summary.json"), sum); werr != nil {
			a.logger.Warn("write batch summary failed", "error", werr)
		}
	}
	if err != nil || !opts.Score {
		return sum, nil, err
	}
	rep, err := a.score(ctx, problems, sum, ScoreOptions{OutputDir: opts.OutputDir})
	return sum, rep, err
}

// Score 从存储读取已有结果并评分
func (a *App) Score(ctx context.Context, opts ScoreOptions) (*scoring.Report, error) {
	opts.DataFile = utils.CoalesceString(opts.DataFile, a.config.Config.Batch.DataFile)
	if opts.DataFile == "" {
		return nil, fmt.Errorf("score: data file is required")
	}
	problems, err := batch.LoadProblems(opts.DataFile)
	if err != nil {
		return nil, err
	}
	return a.score(ctx, problems, nil, opts)
}

func (a *App) score(ctx context.Context, problems []batch.Problem, sum *batch.Summary, opts ScoreOptions) (*scoring.Report, error) {
	cfg := a.config.Config.Scoring
	opts.ResponseType = utils.CoalesceString(opts.ResponseType, cfg.ResponseType)
	opts.MaxWorkers = utils.DefaultInt(opts.MaxWorkers, cfg.MaxWorkers)
	opts.OutputDir = utils.CoalesceString(opts.OutputDir, a.config.Config.Batch.OutputDir)

	results, err := scoring.LoadResults(ctx, a.config.Store, problems)
	if err != nil {
		return nil, err
	}
	// 本次批量的结果优先于存储中的旧记录
	if sum != nil {
		for pid, res := range sum.Results {
			results[pid] = res
		}
	}
	rep, err := scoring.New(opts.MaxWorkers, a.config.Logger).Score(ctx, problems, results, opts.ResponseType)
	if err != nil {
		return nil, err
	}
	if opts.OutputDir != "" {
		if err := writeJSON(filepath.Join(opts.OutputDir, "final_scores_"+rep.ResponseType+".json"), rep); err != nil {
			return rep, err
		}
		if err := writeJSON(filepath.Join(opts.OutputDir, "final_results_"+rep.ResponseType+".json"), rep.Items); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
