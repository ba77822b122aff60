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

// Package verify 判断当前记录是否足以回答问题（STOP）或需要继续调用工具（CONTINUE）
package verify

import (
	"context"
	"fmt"

	"agent-platform/internal/agent/memory"
	"agent-platform/internal/agent/parser"
	"agent-platform/internal/model/llm"
	"agent-platform/pkg/log"
)

// Input 一次验证所需的上下文
type Input struct {
	Query        string
	ImageInfo    string
	Tools        []string
	ToolMetadata string
	Analysis     string
	Memory       *memory.Memory
	Images       []llm.Image
}

// Decider 调用模型做验证，并把输出转换为 STOP/CONTINUE
type Decider struct {
	client  llm.Client
	options llm.GenerateOptions
	logger  *log.Logger
}

// New 创建 Decider；logger 可为 nil
func New(client llm.Client, options llm.GenerateOptions, logger *log.Logger) *Decider {
	return &Decider{client: client, options: options, logger: logger.Component("verify")}
}

// Decide 返回验证结论。模型调用失败时结论为 CONTINUE，错误同时返回给调用方用于记录；
// 继续迭代仍受步数预算约束。
func (d *Decider) Decide(ctx context.Context, in Input) (parser.VerificationResult, error) {
	prompt := Prompt(in)
	out, err := d.client.ChatCompletion(ctx, llm.SingleUser(prompt, in.Images...), d.options)
	if err != nil {
		d.logger.Warn("verification call failed, continuing", "error", err)
		return parser.VerificationResult{
			Analysis: fmt.Sprintf("verification failed: %v", err),
			Decision: parser.Continue,
		}, err
	}
	res := parser.ExtractConclusion(out.Content)
	d.logger.Debug("verification", "decision", res.Decision)
	return res, nil
}
