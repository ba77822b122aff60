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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-resty/resty/v2"

	"agent-platform/pkg/retry"
)

// GeminiClient Gemini 客户端
type GeminiClient struct {
	provider string
	model    string
	apiKey   string
	baseURL  string
	client   *resty.Client
}

// NewGeminiClient 创建新的 Gemini 客户端
func NewGeminiClient(cfg ClientConfig) (*GeminiClient, error) {
	if err := requireKey(cfg); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
		if envURL := os.Getenv("GEMINI_BASE_URL"); envURL != "" {
			baseURL = envURL
		}
	}
	return &GeminiClient{
		provider: "gemini",
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		baseURL:  baseURL,
		client:   retry.NewClient(cfg.Retry, cfg.Timeout),
	}, nil
}

// GenerateWithContext 使用上下文生成文本
func (c *GeminiClient) GenerateWithContext(ctx context.Context, prompt string, options GenerateOptions) (string, error) {
	return c.ChatWithContext(ctx, SingleUser(prompt), options)
}

// ChatWithContext 使用上下文聊天
func (c *GeminiClient) ChatWithContext(ctx context.Context, messages []Message, options GenerateOptions) (string, error) {
	out, err := c.ChatCompletion(ctx, messages, options)
	if err != nil {
		return "", err
	}
	return out.Content, nil
}

// ChatCompletion 调用 generateContent。Gemini 不回报命中的停止序列，StopReason 恒为空。
func (c *GeminiClient) ChatCompletion(ctx context.Context, messages []Message, options GenerateOptions) (*Completion, error) {
	var system []string
	contents := make([]map[string]interface{}, 0, len(messages))
	for _, msg := range messages {
		role := "user"
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
			continue
		case RoleAssistant:
			role = "model"
		}
		parts := []map[string]interface{}{{"text": msg.Content}}
		for _, img := range msg.Images {
			parts = append(parts, map[string]interface{}{
				"inline_data": map[string]string{
					"mime_type": img.mime(),
					"data":      base64.StdEncoding.EncodeToString(img.Data),
				},
			})
		}
		contents = append(contents, map[string]interface{}{"role": role, "parts": parts})
	}

	generation := map[string]interface{}{"temperature": options.Temperature}
	if options.MaxTokens > 0 {
		generation["maxOutputTokens"] = options.MaxTokens
	}
	if options.TopP > 0 {
		generation["topP"] = options.TopP
	}
	if len(options.Stop) > 0 {
		generation["stopSequences"] = options.Stop
	}
	request := map[string]interface{}{
		"contents":         contents,
		"generationConfig": generation,
	}
	if len(system) > 0 {
		request["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]string{{"text": strings.Join(system, "\n\n")}},
		}
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("key", c.apiKey).
		SetBody(request).
		Post(c.baseURL + "/models/" + c.model + ":generateContent")
	if rerr := remoteError(c.provider, response, err); rerr != nil {
		return nil, rerr
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(response.Body(), &result); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(result.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}
	cand := result.Candidates[0]
	var text strings.Builder
	for _, p := range cand.Content.Parts {
		text.WriteString(p.Text)
	}
	out := &Completion{Content: text.String(), FinishReason: strings.ToLower(cand.FinishReason)}
	if cand.FinishReason == "MAX_TOKENS" {
		out.FinishReason = FinishLength
	}
	return out, nil
}

// Model 返回模型名称
func (c *GeminiClient) Model() string {
	return c.model
}

// Provider 返回提供商名称
func (c *GeminiClient) Provider() string {
	return c.provider
}
