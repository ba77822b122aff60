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

// Package planner 规划-执行-验证循环：分析问题，逐步选择并执行工具，验证记录是否足够，
// 在步数预算内结束并生成最终输出。
package planner

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"agent-platform/internal/agent/memory"
	"agent-platform/internal/agent/parser"
	"agent-platform/internal/agent/verify"
	"agent-platform/internal/model/llm"
	"agent-platform/internal/tool/registry"
	"agent-platform/pkg/log"
	"agent-platform/pkg/metrics"
	"agent-platform/pkg/tracing"
)

// 输出类型
const (
	OutputBase   = "base"
	OutputFinal  = "final"
	OutputDirect = "direct"
)

// 停止原因
const (
	StopVerified  = "verified"
	StopBudget    = "budget"
	StopTimeout   = "timeout"
	StopCancelled = "cancelled"
)

// DefaultMaxSteps 未配置步数预算时的默认值
const DefaultMaxSteps = 10

// ErrEmptyQuery 问题文本为空
var ErrEmptyQuery = errors.New("query text is required")

// Query 一次求解请求，会话内不可变
type Query struct {
	PID       string        `json:"pid,omitempty"`
	Text      string        `json:"query"`
	ImagePath string        `json:"image,omitempty"`
	MaxSteps  int           `json:"max_steps,omitempty"` // 0 表示使用配置值
	MaxTime   time.Duration `json:"max_time,omitempty"`  // 0 表示使用配置值
}

// Config 规划循环配置
type Config struct {
	MaxSteps    int
	MaxTime     time.Duration
	MaxTokens   int
	OutputTypes []string
}

// Session 单次求解的全部可变状态；不放在 Planner 上，一个 Planner 可并发服务多个会话
type Session struct {
	ID           string
	Query        Query
	Image        ImageInfo
	images       []llm.Image
	Analysis     string
	BaseResponse string
	Memory       *memory.Memory
	StepCount    int
	MaxSteps     int
	MaxTime      time.Duration
	Started      time.Time
	Errors       []string
}

// Result 会话结果，字段与批量输出文件一致
type Result struct {
	SessionID     string        `json:"session_id"`
	PID           string        `json:"pid,omitempty"`
	Query         string        `json:"query"`
	Image         string        `json:"image,omitempty"`
	QueryAnalysis string        `json:"query_analysis,omitempty"`
	BaseResponse  string        `json:"base_response,omitempty"`
	FinalOutput   string        `json:"final_output,omitempty"`
	DirectOutput  string        `json:"direct_output,omitempty"`
	Memory        []memory.Step `json:"memory"`
	StepCount     int           `json:"step_count"`
	ExecutionTime float64       `json:"execution_time"` // 秒，保留两位小数
	StopReason    string        `json:"stop_reason"`
	Errors        []string      `json:"errors,omitempty"`
}

// Options 构造 Planner 的参数
type Options struct {
	// Client 用于分析、验证与最终输出（可接收图片）
	Client llm.Client
	// ActionClient 用于 DECIDE 与命令生成；为 nil 时使用 Client
	ActionClient   llm.Client
	Tools          *registry.Registry
	DecisionFormat string
	Config         Config
	Logger         *log.Logger
}

// Planner 编排器。构造后只读，所有会话状态在 Session 中。
type Planner struct {
	client   llm.Client
	action   llm.Client
	tools    *registry.Registry
	decision parser.DecisionParser
	calls    *parser.ToolCallParser
	decider  *verify.Decider
	cfg      Config
	options  llm.GenerateOptions
	logger   *log.Logger
	now      func() time.Time
}

// New 创建 Planner；决策格式非法时返回 ConfigurationError
func New(opts Options) (*Planner, error) {
	if opts.Client == nil {
		return nil, errors.New("planner: model client is required")
	}
	if opts.Tools == nil {
		opts.Tools = registry.New()
	}
	if opts.ActionClient == nil {
		opts.ActionClient = opts.Client
	}
	logger := opts.Logger.Component("planner")
	decision, err := parser.NewDecisionParser(opts.DecisionFormat, logger)
	if err != nil {
		return nil, err
	}
	cfg := opts.Config
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if len(cfg.OutputTypes) == 0 {
		cfg.OutputTypes = []string{OutputFinal, OutputDirect}
	}
	options := llm.GenerateOptions{MaxTokens: cfg.MaxTokens}
	return &Planner{
		client:   opts.Client,
		action:   opts.ActionClient,
		tools:    opts.Tools,
		decision: decision,
		calls:    parser.NewToolCallParser(logger),
		decider:  verify.New(opts.Client, options, opts.Logger),
		cfg:      cfg,
		options:  options,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// DecisionFormat 返回当前使用的决策格式
func (p *Planner) DecisionFormat() string { return p.decision.Format() }

// ActionModel 返回执行 DECIDE 的模型名
func (p *Planner) ActionModel() string { return p.action.Model() }

// Tools 返回工具注册表
func (p *Planner) Tools() *registry.Registry { return p.tools }

// NewSession 为 q 创建会话并加载图片信息
func (p *Planner) NewSession(q Query) *Session {
	s := &Session{
		ID:       uuid.NewString(),
		Query:    q,
		Memory:   memory.New(),
		MaxSteps: q.MaxSteps,
		MaxTime:  q.MaxTime,
		Started:  p.now(),
	}
	if s.MaxSteps <= 0 {
		s.MaxSteps = p.cfg.MaxSteps
	}
	if s.MaxTime <= 0 {
		s.MaxTime = p.cfg.MaxTime
	}
	s.Image, s.images = LoadImage(q.ImagePath)
	return s
}

// Run 执行完整会话。模型或工具故障不会中断循环，只会记录到步骤或 Result.Errors；
// 只有问题为空时返回错误。
func (p *Planner) Run(ctx context.Context, q Query) (*Result, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrEmptyQuery
	}
	sess := p.NewSession(q)
	ctx, span := tracing.StartSessionSpan(ctx, sess.ID, sess.MaxSteps)
	defer span.End()

	p.logger.Info("session started", "session_id", sess.ID, "pid", q.PID, "max_steps", sess.MaxSteps, "decision_format", p.decision.Format())

	if p.wants(OutputBase) {
		sess.BaseResponse = p.generate(ctx, sess, "base response", llm.SingleUser(q.Text, sess.images...))
	}
	sess.Analysis = p.generate(ctx, sess, "query analysis",
		llm.SingleUser(analysisPrompt(q.Text, sess.Image.String(), p.tools.Names(), p.toolMetadata()), sess.images...))

	stop := p.loop(ctx, sess)
	res := p.finalize(ctx, sess, stop)

	metrics.SessionTotal.WithLabelValues(stop).Inc()
	metrics.SessionDuration.WithLabelValues(p.decision.Format()).Observe(p.now().Sub(sess.Started).Seconds())
	p.logger.Info("session finished", "session_id", sess.ID, "pid", q.PID, "stop_reason", stop, "steps", sess.StepCount, "execution_time", res.ExecutionTime)
	return res, nil
}

// loop DECIDE→EXECUTE→RECORD→VERIFY。上下文取消与墙钟上限只在步与步之间检查；
// 到达预算的那一步跳过 VERIFY。
func (p *Planner) loop(ctx context.Context, sess *Session) string {
	for {
		if ctx.Err() != nil {
			return StopCancelled
		}
		if sess.MaxTime > 0 && p.now().Sub(sess.Started) >= sess.MaxTime {
			return StopTimeout
		}
		p.step(ctx, sess)
		if sess.StepCount >= sess.MaxSteps {
			return StopBudget
		}
		if p.verify(ctx, sess) {
			return StopVerified
		}
	}
}

func (p *Planner) verify(ctx context.Context, sess *Session) bool {
	res, err := p.decider.Decide(ctx, verify.Input{
		Query:        sess.Query.Text,
		ImageInfo:    sess.Image.String(),
		Tools:        p.tools.Names(),
		ToolMetadata: p.toolMetadata(),
		Analysis:     sess.Analysis,
		Memory:       sess.Memory,
		Images:       sess.images,
	})
	if err != nil {
		sess.Errors = append(sess.Errors, res.Analysis)
	}
	p.logger.Debug("verification", "session_id", sess.ID, "step", sess.StepCount, "decision", res.Decision)
	return res.Decision == parser.Stop
}

// finalize 生成配置的输出；会话被取消时不再调用模型
func (p *Planner) finalize(ctx context.Context, sess *Session, stop string) *Result {
	q := sess.Query
	if stop != StopCancelled {
		actions := sess.Memory.Actions()
		image := sess.Image.String()
		var final, direct string
		if p.wants(OutputFinal) {
			final = p.generate(ctx, sess, "final output", llm.SingleUser(finalPrompt(q.Text, image, actions), sess.images...))
		}
		if p.wants(OutputDirect) {
			direct = p.generate(ctx, sess, "direct output", llm.SingleUser(directPrompt(q.Text, image, sess.Analysis, actions), sess.images...))
		}
		return p.result(sess, stop, final, direct)
	}
	return p.result(sess, stop, "", "")
}

func (p *Planner) result(sess *Session, stop, final, direct string) *Result {
	elapsed := p.now().Sub(sess.Started).Seconds()
	return &Result{
		SessionID:     sess.ID,
		PID:           sess.Query.PID,
		Query:         sess.Query.Text,
		Image:         sess.Query.ImagePath,
		QueryAnalysis: sess.Analysis,
		BaseResponse:  sess.BaseResponse,
		FinalOutput:   final,
		DirectOutput:  direct,
		Memory:        sess.Memory.Steps(),
		StepCount:     sess.StepCount,
		ExecutionTime: math.Round(elapsed*100) / 100,
		StopReason:    stop,
		Errors:        sess.Errors,
	}
}

// generate 单次模型调用；失败时记录错误并返回空串
func (p *Planner) generate(ctx context.Context, sess *Session, what string, msgs []llm.Message) string {
	out, err := p.client.ChatWithContext(ctx, msgs, p.options)
	if err != nil {
		p.logger.Warn(what+" failed", "session_id", sess.ID, "error", err)
		sess.Errors = append(sess.Errors, what+": "+err.Error())
		return ""
	}
	return strings.TrimSpace(out)
}

func (p *Planner) wants(output string) bool {
	for _, o := range p.cfg.OutputTypes {
		if o == output {
			return true
		}
	}
	return false
}

func (p *Planner) toolMetadata() string {
	raw, err := p.tools.MetadataForLLM()
	if err != nil {
		return "[]"
	}
	return raw
}
