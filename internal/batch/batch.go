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

// Package batch 批量求解：读取题目文件，以有界并发运行会话，按 PID 保存记录
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"agent-platform/internal/agent/planner"
	"agent-platform/internal/runtime/jobstore"
	"agent-platform/pkg/log"
	"agent-platform/pkg/metrics"
)

// Problem 题目文件中的一项
type Problem struct {
	PID    string `json:"pid"`
	Query  string `json:"query"`
	Image  string `json:"image,omitempty"`
	Answer string `json:"answer,omitempty"`
}

// UnmarshalJSON 接受数字或字符串形式的 pid 与 answer
func (p *Problem) UnmarshalJSON(data []byte) error {
	var raw struct {
		PID      json.RawMessage `json:"pid"`
		Query    string          `json:"query"`
		Question string          `json:"question"`
		Image    string          `json:"image"`
		Answer   json.RawMessage `json:"answer"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	pid, err := scalarString(raw.PID)
	if err != nil {
		return fmt.Errorf("pid: %w", err)
	}
	answer, err := scalarString(raw.Answer)
	if err != nil {
		return fmt.Errorf("answer: %w", err)
	}
	p.PID, p.Query, p.Image, p.Answer = pid, raw.Query, raw.Image, answer
	if p.Query == "" {
		p.Query = raw.Question
	}
	return nil
}

func scalarString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// LoadProblems 读取 JSON 数组形式的题目文件；相对图片路径按文件所在目录解析。
// 缺少 pid 的题目以其数组下标作为 PID，PID 重复时返回错误。
func LoadProblems(path string) ([]Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var problems []Problem
	if err := json.Unmarshal(data, &problems); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	base := filepath.Dir(path)
	for i := range problems {
		if problems[i].PID == "" {
			problems[i].PID = strconv.Itoa(i)
		}
		if img := problems[i].Image; img != "" && !filepath.IsAbs(img) {
			problems[i].Image = filepath.Join(base, img)
		}
	}
	if err := CheckPIDs(problems); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return problems, nil
}

// CheckPIDs 校验每道题都有唯一且可用作文件名的 PID；结果按 PID 索引，重复会互相覆盖
func CheckPIDs(problems []Problem) error {
	seen := make(map[string]int, len(problems))
	for i, p := range problems {
		if p.PID == "" {
			return fmt.Errorf("problem %d: pid is required", i)
		}
		if err := jobstore.ValidateKey(p.PID); err != nil {
			return fmt.Errorf("problem %d: %w", i, err)
		}
		if j, ok := seen[p.PID]; ok {
			return fmt.Errorf("problem %d: duplicate pid %q (also problem %d)", i, p.PID, j)
		}
		seen[p.PID] = i
	}
	return nil
}

// Solver 单题求解，由 *planner.Planner 实现
type Solver interface {
	Run(ctx context.Context, q planner.Query) (*planner.Result, error)
}

// Options 批量运行参数
type Options struct {
	Concurrency  int
	SkipExisting bool
	MaxSteps     int
	MaxTime      time.Duration
}

// Summary 批量运行结果，Results 以 PID 为键
type Summary struct {
	Total    int                        `json:"total"`
	Solved   int                        `json:"solved"`
	Skipped  int                        `json:"skipped"`
	Failed   int                        `json:"failed"`
	Duration time.Duration              `json:"duration"`
	Results  map[string]*planner.Result `json:"-"`
	Errors   map[string]string          `json:"errors,omitempty"`
}

// Runner 批量求解器
type Runner struct {
	solver Solver
	store  jobstore.Store
	opts   Options
	logger *log.Logger
}

// NewRunner 创建 Runner；Concurrency < 1 时按 1 处理
func NewRunner(solver Solver, store jobstore.Store, opts Options, logger *log.Logger) *Runner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Runner{solver: solver, store: store, opts: opts, logger: logger.Component("batch")}
}

// Run 并发求解全部题目。单题失败只记录在 Summary 中；ctx 取消时停止派发并返回 ctx 错误。
// PID 缺失或重复时不运行任何题目。
func (r *Runner) Run(ctx context.Context, problems []Problem) (*Summary, error) {
	if err := CheckPIDs(problems); err != nil {
		return nil, err
	}
	start := time.Now()
	sum := &Summary{Total: len(problems), Results: make(map[string]*planner.Result, len(problems)), Errors: make(map[string]string)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for _, p := range problems {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			res, skipped, err := r.solve(gctx, p)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case skipped:
				sum.Skipped++
			case err != nil:
				sum.Failed++
				sum.Errors[p.PID] = err.Error()
			default:
				sum.Solved++
			}
			if res != nil {
				sum.Results[p.PID] = res
			}
			return nil
		})
	}
	err := g.Wait()
	sum.Duration = time.Since(start)
	r.logger.Info("batch finished", "total", sum.Total, "solved", sum.Solved, "skipped", sum.Skipped, "failed", sum.Failed, "duration", sum.Duration)
	if err == nil {
		err = ctx.Err()
	}
	return sum, err
}

// solve 求解一题并保存记录；已有完成记录且开启跳过时返回已有结果
func (r *Runner) solve(ctx context.Context, p Problem) (*planner.Result, bool, error) {
	if r.opts.SkipExisting && p.PID != "" {
		if prev, err := r.store.GetByPID(ctx, p.PID); err == nil && prev.Status == jobstore.StatusCompleted {
			r.logger.Debug("skip existing", "pid", p.PID)
			return prev.Result, true, nil
		}
	}

	metrics.BatchBusy.Inc()
	defer metrics.BatchBusy.Dec()

	q := planner.Query{PID: p.PID, Text: p.Query, ImagePath: p.Image, MaxSteps: r.opts.MaxSteps, MaxTime: r.opts.MaxTime}
	run := &jobstore.Run{ID: uuid.NewString(), Status: jobstore.StatusRunning, Request: q}
	if err := r.store.Create(ctx, run); err != nil {
		return nil, false, fmt.Errorf("create run: %w", err)
	}

	res, err := r.solver.Run(ctx, q)
	if err != nil {
		run.Status, run.Error = jobstore.StatusFailed, err.Error()
	} else {
		run.Status, run.Result = jobstore.StatusCompleted, res
	}
	if uerr := r.store.Update(context.WithoutCancel(ctx), run); uerr != nil {
		r.logger.Error("save run failed", "pid", p.PID, "run_id", run.ID, "error", uerr)
		err = errors.Join(err, uerr)
	}
	if err != nil {
		r.logger.Warn("problem failed", "pid", p.PID, "error", err)
	}
	return res, false, err
}
