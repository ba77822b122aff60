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

// Package memory 单个求解会话的步骤记录：只追加、有序，不跨会话共享
package memory

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"agent-platform/internal/tool"
	"agent-platform/pkg/errors"
)

// Step 一次 DECIDE→EXECUTE→RECORD 迭代的结果，追加后不可修改
type Step struct {
	Index     int             `json:"index"`
	Context   string          `json:"context,omitempty"`
	SubGoal   string          `json:"sub_goal,omitempty"`
	ToolName  string          `json:"tool_name"`
	Call      *tool.Call      `json:"tool_call,omitempty"`
	Result    tool.ToolResult `json:"result"`
	Timestamp time.Time       `json:"timestamp"`
}

// Failed 该步是否以失败结束（解析失败、未匹配工具或执行错误）
func (s Step) Failed() bool { return s.Result.Failed() }

// Memory 会话内的步骤日志
type Memory struct {
	mu    sync.RWMutex
	steps []Step
}

// New 创建空的 Memory
func New() *Memory {
	return &Memory{}
}

// Append 追加一步；Index 由 Memory 分配，Timestamp 为空时取当前时间。返回实际保存的步骤。
func (m *Memory) Append(s Step) Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Index = len(m.steps)
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	if s.Call != nil {
		c := *s.Call
		c.Args = append([]tool.Arg(nil), s.Call.Args...)
		s.Call = &c
	}
	m.steps = append(m.steps, s)
	return s
}

// Len 已记录的步数
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.steps)
}

// Steps 返回全部步骤的副本
func (m *Memory) Steps() []Step {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Step, len(m.steps))
	copy(out, m.steps)
	return out
}

// ToolCounts 每个工具被选中的次数，未匹配的步骤不计入
func (m *Memory) ToolCounts() map[string]int {
	out := make(map[string]int)
	for _, s := range m.Steps() {
		if s.Call != nil && !strings.HasPrefix(s.ToolName, errors.UnmatchedToolPrefix) && s.ToolName != "" {
			out[s.ToolName]++
		}
	}
	return out
}

// Actions 返回按顺序排列的可读记录，原样放入每个提示词
func (m *Memory) Actions() string {
	steps := m.Steps()
	if len(steps) == 0 {
		return "No actions have been taken yet."
	}
	var b strings.Builder
	for i, s := range steps {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Action Step %d:\n", s.Index+1)
		fmt.Fprintf(&b, "  Tool Name: %s\n", s.ToolName)
		if s.Context != "" {
			fmt.Fprintf(&b, "  Context: %s\n", s.Context)
		}
		if s.SubGoal != "" {
			fmt.Fprintf(&b, "  Sub-Goal: %s\n", s.SubGoal)
		}
		if s.Call != nil {
			fmt.Fprintf(&b, "  Command: %s\n", s.Call.String())
		}
		fmt.Fprintf(&b, "  Result: %s\n", s.Result.String())
	}
	return b.String()
}

// MarshalJSON 序列化为步骤数组
func (m *Memory) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Steps())
}
