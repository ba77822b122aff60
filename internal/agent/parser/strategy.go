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

package parser

import (
	"fmt"
	"regexp"
	"strings"

	"agent-platform/internal/tool"
	"agent-platform/pkg/errors"
	"agent-platform/pkg/log"
)

// 决策输出格式，由模型后端的能力决定
const (
	FormatToolCall = "tool_call"
	FormatSubgoal  = "subgoal"
)

// ErrNoSubgoal 响应中没有 Context/Sub-Goal/Tool Name 段
var ErrNoSubgoal = errors.New("no Context/Sub-Goal/Tool Name segment found")

var thinkBlock = regexp.MustCompile(`(?s)<think>(.*?)</think>`)

// Action 一次 DECIDE 的解析结果
type Action struct {
	Context string
	SubGoal string
	// ToolName 为注册表中的工具名或未匹配哨兵；没有选择工具时为空
	ToolName string
	Call     *tool.Call
	// NeedsCommand 为 true 时参数需要通过一次命令生成调用补全
	NeedsCommand bool
}

// DecisionParser 把 DECIDE 阶段的模型输出解析为 Action
type DecisionParser interface {
	Format() string
	Parse(response string, tools []string) (Action, error)
}

// NewDecisionParser 按格式返回解析策略；空格式默认 tool_call
func NewDecisionParser(format string, logger *log.Logger) (DecisionParser, error) {
	switch format {
	case "", FormatToolCall:
		return &toolCallStrategy{calls: NewToolCallParser(logger)}, nil
	case FormatSubgoal:
		return subgoalStrategy{}, nil
	default:
		return nil, &errors.ConfigurationError{Key: "agent.decision_format", Reason: fmt.Sprintf("unsupported format %q", format)}
	}
}

type toolCallStrategy struct {
	calls *ToolCallParser
}

func (s *toolCallStrategy) Format() string { return FormatToolCall }

func (s *toolCallStrategy) Parse(response string, tools []string) (Action, error) {
	act := Action{Context: reasoningOf(response)}
	call, err := s.calls.Extract(response)
	if err != nil || call == nil {
		return act, err
	}
	act.Call = call
	act.ToolName = ResolveToolName(call.Name, tools)
	return act, nil
}

type subgoalStrategy struct{}

func (subgoalStrategy) Format() string { return FormatSubgoal }

func (subgoalStrategy) Parse(response string, tools []string) (Action, error) {
	sg, ok := ExtractSubgoal(response, tools)
	if !ok {
		return Action{}, ErrNoSubgoal
	}
	return Action{
		Context:      sg.Context,
		SubGoal:      sg.SubGoal,
		ToolName:     sg.ToolName,
		NeedsCommand: !IsUnmatched(sg.ToolName),
	}, nil
}

// ResolveToolName 精确命中注册表时直接使用，否则退回 NormalizeToolName
func ResolveToolName(name string, tools []string) string {
	for _, t := range tools {
		if t == name {
			return t
		}
	}
	return NormalizeToolName(name, tools)
}

// reasoningOf 返回调用块之外的推理文本：优先最后一个 <think> 块，否则为第一个调用块之前的内容
func reasoningOf(response string) string {
	if m := thinkBlock.FindAllStringSubmatch(response, -1); len(m) > 0 {
		return strings.TrimSpace(m[len(m)-1][1])
	}
	if i := strings.Index(response, "<tool_call>"); i >= 0 {
		return strings.TrimSpace(response[:i])
	}
	return strings.TrimSpace(response)
}
