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

package tool

import (
	"context"
)

// DemoCommand 工具用法示例，展示给规划模型
type DemoCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// Metadata 工具的只读描述，规划模型据此选择工具与构造参数
type Metadata struct {
	Name             string            `json:"tool_name"`
	Description      string            `json:"tool_description"`
	Version          string            `json:"tool_version,omitempty"`
	InputTypes       map[string]string `json:"input_types"`
	OutputType       string            `json:"output_type"`
	DemoCommands     []DemoCommand     `json:"demo_commands,omitempty"`
	UserMetadata     map[string]any    `json:"user_metadata,omitempty"`
	RequireLLMEngine bool              `json:"require_llm_engine"`
}

// ToolResult 工具执行结果；Err 非空表示执行失败，失败作为数据记录而不是中断循环
type ToolResult struct {
	Content string `json:"content"`
	Err     string `json:"error,omitempty"`
}

// Failed 是否执行失败
func (r ToolResult) Failed() bool { return r.Err != "" }

// String 返回写入步骤记录的文本
func (r ToolResult) String() string {
	if r.Err != "" {
		return "Error: " + r.Err
	}
	return r.Content
}

// Tool 规划循环可调用的工具
type Tool interface {
	Name() string
	Metadata() Metadata
	// Execute 执行工具；业务失败应通过 ToolResult.Err 返回，error 仅用于意外故障
	Execute(ctx context.Context, input map[string]any) (ToolResult, error)
}

// StringArg 读取字符串参数；非字符串的标量按 fmt 规则转换
func StringArg(input map[string]any, key string) string {
	v, ok := input[key]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	default:
		return formatScalar(x)
	}
}

// IntArg 读取整数参数，缺失或类型不符时返回 def
func IntArg(input map[string]any, key string, def int) int {
	switch x := input[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	default:
		return def
	}
}
