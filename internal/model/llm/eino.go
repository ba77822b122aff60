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

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"agent-platform/pkg/retry"
)

// EinoClient 将 eino ChatModel 适配为 Client；重试由 retry.Do 负责
type EinoClient struct {
	model  string
	chat   model.BaseChatModel
	policy retry.Policy
}

// NewEinoClient 使用 eino-ext 的 OpenAI ChatModel 创建客户端
func NewEinoClient(ctx context.Context, cfg ClientConfig) (*EinoClient, error) {
	if err := requireKey(cfg); err != nil {
		return nil, err
	}
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create eino chat model: %w", err)
	}
	return NewEinoClientWithModel(cfg.Model, chatModel, cfg.Retry), nil
}

// NewEinoClientWithModel 包装任意 eino BaseChatModel
func NewEinoClientWithModel(modelName string, chat model.BaseChatModel, policy retry.Policy) *EinoClient {
	return &EinoClient{model: modelName, chat: chat, policy: policy}
}

// GenerateWithContext 使用上下文生成文本
func (c *EinoClient) GenerateWithContext(ctx context.Context, prompt string, options GenerateOptions) (string, error) {
	return c.ChatWithContext(ctx, SingleUser(prompt), options)
}

// ChatWithContext 使用上下文聊天
func (c *EinoClient) ChatWithContext(ctx context.Context, messages []Message, options GenerateOptions) (string, error) {
	out, err := c.ChatCompletion(ctx, messages, options)
	if err != nil {
		return "", err
	}
	return out.Content, nil
}

// ChatCompletion 调用 eino ChatModel.Generate
func (c *EinoClient) ChatCompletion(ctx context.Context, messages []Message, options GenerateOptions) (*Completion, error) {
	input := toEinoMessages(messages)
	opts := []model.Option{model.WithTemperature(float32(options.Temperature))}
	if options.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(options.MaxTokens))
	}
	if options.TopP > 0 {
		opts = append(opts, model.WithTopP(float32(options.TopP)))
	}
	if len(options.Stop) > 0 {
		opts = append(opts, model.WithStop(options.Stop))
	}

	var msg *schema.Message
	err := retry.Do(ctx, c.policy, "chat", c.Provider(), func(ctx context.Context) error {
		out, err := c.chat.Generate(ctx, input, opts...)
		if err != nil {
			return err
		}
		msg = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := &Completion{Content: msg.Content}
	if msg.ResponseMeta != nil {
		out.FinishReason = strings.ToLower(msg.ResponseMeta.FinishReason)
	}
	return out, nil
}

func toEinoMessages(messages []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		var msg *schema.Message
		switch m.Role {
		case RoleSystem:
			msg = schema.SystemMessage(m.Content)
		case RoleAssistant:
			msg = schema.AssistantMessage(m.Content, nil)
		default:
			// OpenAI 要求 tool 消息携带 tool_call_id，这里按用户消息发送
			msg = schema.UserMessage(m.Content)
		}
		if len(m.Images) > 0 {
			parts := []schema.ChatMessagePart{{Type: schema.ChatMessagePartTypeText, Text: m.Content}}
			for _, img := range m.Images {
				parts = append(parts, schema.ChatMessagePart{
					Type:     schema.ChatMessagePartTypeImageURL,
					ImageURL: &schema.ChatMessageImageURL{URL: img.DataURL()},
				})
			}
			msg.Content = ""
			msg.MultiContent = parts
		}
		out = append(out, msg)
	}
	return out
}

// Model 返回模型名称
func (c *EinoClient) Model() string {
	return c.model
}

// Provider 返回提供商名称
func (c *EinoClient) Provider() string {
	return "eino"
}
