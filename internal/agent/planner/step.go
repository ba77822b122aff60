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

package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agent-platform/internal/agent/memory"
	"agent-platform/internal/agent/parser"
	"agent-platform/internal/model/llm"
	"agent-platform/internal/tool"
	perrors "agent-platform/pkg/errors"
	"agent-platform/pkg/metrics"
	"agent-platform/pkg/tracing"
)

// 步骤结果分类，对应 agent_step_total 的 outcome 标签
const (
	outcomeOK          = "ok"
	outcomeToolError   = "tool_error"
	outcomeUnmatched   = "unmatched"
	outcomeParseError  = "parse_error"
	outcomeRemoteError = "remote_error"
)

var errNoCommand = errors.New("no tool call found in generated command")

// step 执行一次 DECIDE→EXECUTE→RECORD；无论成败都消耗一步
func (p *Planner) step(ctx context.Context, sess *Session) {
	index := sess.StepCount
	ctx, span := tracing.StartStepSpan(ctx, index)
	defer span.End()

	st, outcome := p.act(ctx, sess)
	st = sess.Memory.Append(st)
	sess.StepCount++

	label := st.ToolName
	if parser.IsUnmatched(label) {
		label = outcomeUnmatched
	}
	metrics.StepTotal.WithLabelValues(label, outcome).Inc()
	p.logger.Info("step recorded", "session_id", sess.ID, "step", st.Index, "tool", st.ToolName, "outcome", outcome)
}

func (p *Planner) act(ctx context.Context, sess *Session) (memory.Step, string) {
	tools := p.tools.Names()
	resp, err := p.decide(ctx, sess, tools)
	if err != nil {
		return failed(memory.Step{}, "decision failed: "+err.Error()), outcomeRemoteError
	}

	action, err := p.decision.Parse(resp, tools)
	st := memory.Step{Context: action.Context, SubGoal: action.SubGoal, ToolName: action.ToolName}
	switch {
	case err != nil:
		return failed(st, "could not parse the next step: "+err.Error()), outcomeParseError
	case action.ToolName == "":
		return failed(st, "no tool call in response"), outcomeUnmatched
	case parser.IsUnmatched(action.ToolName):
		st.Call = action.Call
		return failed(st, "tool not found: "+unmatchedName(action.ToolName)), outcomeUnmatched
	}

	call := action.Call
	if action.NeedsCommand {
		call, err = p.command(ctx, sess, action)
		if err != nil {
			outcome := outcomeParseError
			if errors.Is(err, perrors.ErrRemoteCall) {
				outcome = outcomeRemoteError
			}
			return failed(st, "command generation failed: "+err.Error()), outcome
		}
	}
	call.Name = action.ToolName
	st.Call = call
	var outcome string
	st.Result, outcome = p.execute(ctx, action.ToolName, call)
	return st, outcome
}

// failed 把失败记录为步骤结果；未选出工具时工具名使用未匹配哨兵
func failed(st memory.Step, msg string) memory.Step {
	if st.ToolName == "" {
		st.ToolName = perrors.UnmatchedToolPrefix
	}
	st.Result = tool.ToolResult{Err: msg}
	return st
}

func unmatchedName(toolName string) string {
	return toolName[len(perrors.UnmatchedToolPrefix):]
}

// decide 请求下一步；提示词变体由决策格式决定
func (p *Planner) decide(ctx context.Context, sess *Session, tools []string) (string, error) {
	dc := decideContext{
		Query:        sess.Query.Text,
		Image:        sess.Image.String(),
		Analysis:     sess.Analysis,
		Tools:        tools,
		ToolMetadata: p.toolMetadata(),
		Memory:       sess.Memory.Actions(),
		Step:         sess.StepCount + 1,
		MaxSteps:     sess.MaxSteps,
	}
	system, user := toolCallMessages(dc)
	if p.decision.Format() == parser.FormatSubgoal {
		system, user = subgoalMessages(dc)
	}
	out, err := p.action.ChatCompletion(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, p.options)
	if err != nil {
		return "", err
	}
	p.logger.Debug("next step", "session_id", sess.ID, "response", out.Content)
	return out.Content, nil
}

// command 为 subgoal 格式选出的工具生成具体参数
func (p *Planner) command(ctx context.Context, sess *Session, action parser.Action) (*tool.Call, error) {
	var metadata string
	if t, ok := p.tools.Get(action.ToolName); ok {
		raw, _ := json.Marshal(t.Metadata())
		metadata = string(raw)
	}
	prompt := commandPrompt(sess.Query.Text, sess.Image.String(), action.Context, action.SubGoal, action.ToolName, metadata)
	out, err := p.action.GenerateWithContext(ctx, prompt, p.options)
	if err != nil {
		return nil, err
	}
	call, err := p.calls.Extract(out)
	if err != nil {
		return nil, err
	}
	if call == nil {
		return nil, errNoCommand
	}
	return call, nil
}

// execute 调用工具。工具返回的 error 与 panic 都转换为 ToolResult.Err，工具不能中断循环。
func (p *Planner) execute(ctx context.Context, name string, call *tool.Call) (res tool.ToolResult, outcome string) {
	t, ok := p.tools.Get(name)
	if !ok {
		return tool.ToolResult{Err: "tool not found: " + name}, outcomeUnmatched
	}
	ctx, span := tracing.StartToolSpan(ctx, name)
	defer span.End()
	start := time.Now()
	defer func() {
		metrics.ToolDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("tool panicked", "tool", name, "panic", r)
			res, outcome = tool.ToolResult{Err: fmt.Sprintf("tool panicked: %v", r)}, outcomeToolError
		}
	}()

	res, err := t.Execute(ctx, call.Map())
	if err != nil {
		tracing.RecordError(span, err)
		res.Err = err.Error()
	}
	if res.Failed() {
		return res, outcomeToolError
	}
	return res, outcomeOK
}
