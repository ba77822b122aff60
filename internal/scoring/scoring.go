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

// Package scoring 离线评分：从输出中抽取选项答案，与标准答案比对，并统计步数、耗时与工具使用
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"agent-platform/internal/agent/planner"
	"agent-platform/internal/batch"
	"agent-platform/internal/runtime/jobstore"
	"agent-platform/pkg/log"
	"agent-platform/pkg/metrics"
)

// 可评分的输出字段
const (
	ResponseFinal  = "final_output"
	ResponseDirect = "direct_output"
	ResponseBase   = "base_response"
)

var choicePattern = regexp.MustCompile(`(?i)Answer\s*:\s*([a-f])`)

var digitChoices = map[string]string{"1": "a", "2": "b", "3": "c", "4": "d", "5": "e", "6": "f"}

// NormalizeAnswer 统一选项的各种写法：去空白、转小写、剥掉两端的 .()'" ，数字 1-6 映射为 a-f
func NormalizeAnswer(answer string) string {
	n := strings.Trim(strings.ToLower(strings.TrimSpace(answer)), `.()'"`)
	if m, ok := digitChoices[n]; ok {
		return m
	}
	return n
}

// ExtractChoice 抽取第一个 "Answer: <a-f>" 中的选项
func ExtractChoice(response string) (string, bool) {
	m := choicePattern.FindStringSubmatch(response)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Verify 比对回答与标准答案：没有 "Answer:" 时用整段回答；归一化后相等或以标准答案开头即为正确。
// 标准答案为空时判为错误。
func Verify(response, correct string) (prediction string, ok bool) {
	prediction, found := ExtractChoice(response)
	if !found {
		prediction = response
	}
	gt := NormalizeAnswer(correct)
	if gt == "" {
		return prediction, false
	}
	pred := NormalizeAnswer(prediction)
	return prediction, pred == gt || strings.HasPrefix(pred, gt)
}

// Item 单题评分
type Item struct {
	PID           string `json:"pid"`
	Query         string `json:"query"`
	Response      string `json:"response"`
	CorrectAnswer string `json:"correct_answer"`
	Prediction    string `json:"stepwise_analysis"`
	Correct       bool   `json:"true_false"`
}

// StepStats 步数与耗时统计
type StepStats struct {
	AvgSteps float64 `json:"avg_steps"`
	MaxSteps int     `json:"max_steps"`
	AvgTime  float64 `json:"avg_time"`
	MaxTime  float64 `json:"max_time"`
}

// Report 评分汇总
type Report struct {
	ResponseType string             `json:"response_type"`
	Correct      int                `json:"correct"`
	Total        int                `json:"total"`
	Accuracy     float64            `json:"accuracy"` // 百分比，两位小数
	WrongPIDs    []string           `json:"wrong_pids"`
	Missing      []string           `json:"missing_pids,omitempty"`
	StepStats    *StepStats         `json:"step_stats,omitempty"`
	ToolUsage    map[string]float64 `json:"tool_usage,omitempty"`
	Items        map[string]*Item   `json:"-"`
}

// Scorer 并发评分器
type Scorer struct {
	maxWorkers int
	logger     *log.Logger
}

// New 创建 Scorer；maxWorkers < 1 时按 1 处理
func New(maxWorkers int, logger *log.Logger) *Scorer {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Scorer{maxWorkers: maxWorkers, logger: logger.Component("scoring")}
}

// ResponseOf 返回结果中指定类型的输出
func ResponseOf(res *planner.Result, responseType string) (string, error) {
	switch responseType {
	case ResponseFinal:
		return res.FinalOutput, nil
	case ResponseDirect, "":
		return res.DirectOutput, nil
	case ResponseBase:
		return res.BaseResponse, nil
	default:
		return "", fmt.Errorf("unsupported response type %q", responseType)
	}
}

// Score 对有结果的题目评分；results 以 PID 为键，没有结果的题目记入 Missing 且不计入总数
func (s *Scorer) Score(ctx context.Context, problems []batch.Problem, results map[string]*planner.Result, responseType string) (*Report, error) {
	if responseType == "" {
		responseType = ResponseDirect
	}
	if _, err := ResponseOf(&planner.Result{}, responseType); err != nil {
		return nil, err
	}
	if err := batch.CheckPIDs(problems); err != nil {
		return nil, err
	}
	rep := &Report{ResponseType: responseType, Items: make(map[string]*Item)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxWorkers)
	for _, p := range problems {
		res, ok := results[p.PID]
		if !ok || res == nil {
			rep.Missing = append(rep.Missing, p.PID)
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			response, _ := ResponseOf(res, responseType)
			pred, correct := Verify(response, p.Answer)
			mu.Lock()
			rep.Items[p.PID] = &Item{PID: p.PID, Query: p.Query, Response: response, CorrectAnswer: p.Answer, Prediction: pred, Correct: correct}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep.Total = len(rep.Items)
	for pid, it := range rep.Items {
		if it.Correct {
			rep.Correct++
		} else {
			rep.WrongPIDs = append(rep.WrongPIDs, pid)
		}
	}
	sortPIDs(rep.WrongPIDs)
	sortPIDs(rep.Missing)
	if rep.Total > 0 {
		rep.Accuracy = round(float64(rep.Correct)/float64(rep.Total)*100, 2)
	}
	if responseType != ResponseBase {
		rep.StepStats, rep.ToolUsage = usage(results, rep.Items)
	}
	metrics.ScoreAccuracy.WithLabelValues(responseType).Set(rep.Accuracy)
	s.logger.Info("scoring finished", "response_type", responseType, "correct", rep.Correct, "total", rep.Total, "accuracy", rep.Accuracy)
	return rep, nil
}

// usage 统计已评分题目的步数、耗时，以及每个工具被至少使用一次的题目占比
func usage(results map[string]*planner.Result, items map[string]*Item) (*StepStats, map[string]float64) {
	if len(items) == 0 {
		return nil, nil
	}
	st := &StepStats{}
	used := make(map[string]int)
	for pid := range items {
		res := results[pid]
		st.AvgSteps += float64(res.StepCount)
		st.AvgTime += res.ExecutionTime
		st.MaxSteps = max(st.MaxSteps, res.StepCount)
		st.MaxTime = math.Max(st.MaxTime, res.ExecutionTime)
		seen := make(map[string]bool)
		for _, step := range res.Memory {
			if step.Call != nil && !seen[step.ToolName] {
				seen[step.ToolName] = true
				used[step.ToolName]++
			}
		}
	}
	n := float64(len(items))
	st.AvgSteps = round(st.AvgSteps/n, 2)
	st.AvgTime = round(st.AvgTime/n, 2)
	ratios := make(map[string]float64, len(used))
	for name, c := range used {
		ratios[name] = round(float64(c)/n, 3)
	}
	return st, ratios
}

// LoadResults 从存储中按 PID 读取已完成的结果
func LoadResults(ctx context.Context, store jobstore.Store, problems []batch.Problem) (map[string]*planner.Result, error) {
	out := make(map[string]*planner.Result, len(problems))
	for _, p := range problems {
		run, err := store.GetByPID(ctx, p.PID)
		if err != nil {
			if errors.Is(err, jobstore.ErrRunNotFound) {
				continue
			}
			return nil, err
		}
		if run.Result != nil {
			out[p.PID] = run.Result
		}
	}
	return out, nil
}

// sortPIDs 数字 PID 按数值排序，其余按字典序排在后面
func sortPIDs(pids []string) {
	sort.SliceStable(pids, func(i, j int) bool {
		a, errA := strconv.Atoi(pids[i])
		b, errB := strconv.Atoi(pids[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return pids[i] < pids[j]
		}
	})
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
