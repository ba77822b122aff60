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

package builtin

import (
	"context"
	"os"

	"agent-platform/internal/model/llm"
	"agent-platform/internal/tool"
)

// 基于提示的工具名
const (
	GeneralistToolName = "Generalist_Solution_Generator_Tool"
	PerplexityToolName = "Perplexity_Tool"
)

const perplexitySystemPrompt = "You are a helpful search assistant. Answer the question using up-to-date information from the web, and cite the sources you relied on."

// PromptTool 把一次模型调用包装为工具；Generalist 与 Perplexity 共用该实现，只有元数据与系统提示不同
type PromptTool struct {
	meta    tool.Metadata
	client  llm.Client
	system  string
	options llm.GenerateOptions
	// argument 主输入参数名
	argument string
	// images 是否接受 image 路径参数
	images bool
}

// NewGeneralistTool 创建 Generalist_Solution_Generator_Tool
func NewGeneralistTool(client llm.Client, options llm.GenerateOptions) *PromptTool {
	return &PromptTool{
		client:   client,
		options:  options,
		argument: "prompt",
		images:   true,
		meta: tool.Metadata{
			Name:        GeneralistToolName,
			Description: "A generalized tool that takes query from the user as prompt, and answers the question step by step to the best of its ability. It can also accept an image.",
			Version:     "1.0.0",
			InputTypes: map[string]string{
				"prompt": "str - The prompt that includes query from the user to guide the agent to generate response.",
				"image":  "str - The path to the image file if applicable (default: None).",
			},
			OutputType: "str - The generated response to the original query prompt",
			DemoCommands: []tool.DemoCommand{
				{Command: `execution = tool.execute(prompt="Summarize the following text in a few lines")`, Description: "Generate a short summary given the prompt from the user."},
				{Command: `execution = tool.execute(prompt="Explain the mood of this scene.", image="path/to/image1.png")`, Description: "Generate a caption focusing on the mood using a specific prompt and image."},
			},
			UserMetadata: map[string]any{
				"limitation":    "The Generalist_Solution_Generator_Tool may provide hallucinated or incorrect responses.",
				"best_practice": "Use the Generalist_Solution_Generator_Tool for general queries or tasks that don't require specialized knowledge or specific tools in the toolbox.",
			},
			RequireLLMEngine: true,
		},
	}
}

// NewPerplexityTool 创建 Perplexity_Tool；client 指向 OpenAI 兼容的 Perplexity 接口
func NewPerplexityTool(client llm.Client, options llm.GenerateOptions) *PromptTool {
	return &PromptTool{
		client:   client,
		options:  options,
		system:   perplexitySystemPrompt,
		argument: "query",
		meta: tool.Metadata{
			Name:        PerplexityToolName,
			Description: "A tool that answers a question with an online search-augmented model, returning a concise answer grounded in current web sources.",
			Version:     "1.0.0",
			InputTypes:  map[string]string{"query": "str - The question to answer."},
			OutputType:  "str - The answer with cited sources.",
			DemoCommands: []tool.DemoCommand{
				{Command: `execution = tool.execute(query="Who won the 2022 FIFA World Cup?")`, Description: "Answer a factual question using live web results."},
			},
			RequireLLMEngine: true,
		},
	}
}

// Name 实现 tool.Tool
func (t *PromptTool) Name() string { return t.meta.Name }

// Metadata 实现 tool.Tool
func (t *PromptTool) Metadata() tool.Metadata { return t.meta }

// Execute 实现 tool.Tool
func (t *PromptTool) Execute(ctx context.Context, input map[string]any) (tool.ToolResult, error) {
	prompt := tool.StringArg(input, t.argument)
	if prompt == "" {
		return tool.ToolResult{Err: t.argument + " is required"}, nil
	}
	var images []llm.Image
	if path := tool.StringArg(input, "image"); t.images && path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return tool.ToolResult{Err: "read image: " + err.Error()}, nil
		}
		images = append(images, llm.Image{Data: data})
	}
	var msgs []llm.Message
	if t.system != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: t.system})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: prompt, Images: images})
	out, err := t.client.ChatWithContext(ctx, msgs, t.options)
	if err != nil {
		return tool.ToolResult{Err: err.Error()}, nil
	}
	return tool.ToolResult{Content: out}, nil
}
