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
	"github.com/go-resty/resty/v2"

	"agent-platform/internal/agent/websearch"
	"agent-platform/internal/model/llm"
	"agent-platform/internal/search"
	"agent-platform/internal/tool"
	"agent-platform/internal/tool/registry"
	"agent-platform/pkg/log"
)

// Dependencies 内置工具的协作方；为 nil 的协作方对应的工具不注册
type Dependencies struct {
	// ToolLLM 工具内部使用的模型（Generalist、Web_Agent_Tool 子代理）
	ToolLLM llm.Client
	// WebAgentLLM 子代理专用模型，为 nil 时使用 ToolLLM
	WebAgentLLM llm.Client
	Perplexity llm.Client
	Search     search.Provider
	HTTP       *resty.Client
	Options    llm.GenerateOptions
	WebAgent   websearch.Config
	NumResults int
	MaxChars   int
	Logger     *log.Logger
}

// AllToolNames 内置工具的注册顺序
var AllToolNames = []string{
	GeneralistToolName,
	WebAgentToolName,
	GoogleSearchToolName,
	PerplexityToolName,
	URLExtractorToolName,
}

// Register 按 AllToolNames 的顺序注册可用的内置工具；enabled 为空时注册全部，
// 否则只注册其中列出的工具。返回未能注册的已启用工具名（缺少协作方）。
func Register(reg *registry.Registry, deps Dependencies, enabled []string) []string {
	if reg == nil {
		return nil
	}
	want := make(map[string]bool, len(enabled))
	for _, n := range enabled {
		want[n] = true
	}
	var missing []string
	for _, name := range AllToolNames {
		if len(enabled) > 0 && !want[name] {
			continue
		}
		if t := build(name, deps); t != nil {
			reg.Register(t)
		} else {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		deps.Logger.Component("tools").Warn("tools skipped for missing dependencies", "tools", missing)
	}
	return missing
}

func build(name string, deps Dependencies) tool.Tool {
	switch name {
	case GeneralistToolName:
		if deps.ToolLLM != nil {
			return NewGeneralistTool(deps.ToolLLM, deps.Options)
		}
	case WebAgentToolName:
		client := deps.WebAgentLLM
		if client == nil {
			client = deps.ToolLLM
		}
		if client != nil && deps.Search != nil {
			cfg := deps.WebAgent
			if cfg.NumResults == 0 {
				cfg.NumResults = deps.NumResults
			}
			return NewWebAgentTool(websearch.New(client, deps.Search, cfg, deps.Logger))
		}
	case GoogleSearchToolName:
		if deps.Search != nil {
			return NewGoogleSearchTool(deps.Search, deps.NumResults)
		}
	case PerplexityToolName:
		if deps.Perplexity != nil {
			return NewPerplexityTool(deps.Perplexity, deps.Options)
		}
	case URLExtractorToolName:
		return NewURLExtractorTool(deps.HTTP, deps.MaxChars)
	}
	return nil
}
