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

// Package builtin 内置工具：网页子代理、搜索、通用求解、Perplexity 与网页正文抽取
package builtin

import (
	"context"

	"agent-platform/internal/agent/websearch"
	"agent-platform/internal/tool"
)

// WebAgentToolName 搜索子代理工具名
const WebAgentToolName = "Web_Agent_Tool"

// WebAgentTool 把多轮搜索推理子代理包装为单个工具调用
type WebAgentTool struct {
	agent *websearch.Agent
}

// NewWebAgentTool 创建 Web_Agent_Tool
func NewWebAgentTool(agent *websearch.Agent) *WebAgentTool {
	return &WebAgentTool{agent: agent}
}

// Name 实现 tool.Tool
func (t *WebAgentTool) Name() string { return WebAgentToolName }

// Metadata 实现 tool.Tool
func (t *WebAgentTool) Metadata() tool.Metadata {
	return tool.Metadata{
		Name: WebAgentToolName,
		Description: "A web agent tool that integrates google search tool with reasoning ability " +
			"to interpret user tasks, plan appropriate actions, autonomously invoke tool, and generate intelligent responses " +
			"based on online information.",
		Version:    "1.0.0",
		InputTypes: map[string]string{"prompt": "str - The natural language search query to guide the web agent."},
		OutputType: "str - A reasoned and synthesized response based on web tool outputs.",
		DemoCommands: []tool.DemoCommand{{
			Command:     `execution = tool.execute(prompt="Compare the latest MacBook and Dell XPS specs and recommend one.")`,
			Description: "Demonstrates reasoning: searches the web, extracts specs, compares, and makes a recommendation.",
		}},
		RequireLLMEngine: true,
	}
}

// Execute 实现 tool.Tool；模型调用失败作为结构化错误返回
func (t *WebAgentTool) Execute(ctx context.Context, input map[string]any) (tool.ToolResult, error) {
	prompt := tool.StringArg(input, "prompt")
	if prompt == "" {
		prompt = tool.StringArg(input, "query")
	}
	if prompt == "" {
		return tool.ToolResult{Err: "prompt is required"}, nil
	}
	res, err := t.agent.Run(ctx, prompt)
	if err != nil {
		return tool.ToolResult{Err: err.Error()}, nil
	}
	return tool.ToolResult{Content: res.Answer}, nil
}
