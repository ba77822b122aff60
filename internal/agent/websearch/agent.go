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

// Package websearch 搜索增强的多轮推理子代理：每轮生成在 </search> 或 </answer> 处停止，
// 命中 </search> 时执行搜索并把结果作为 <information> 注入，最后一轮只允许 </answer>。
package websearch

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"agent-platform/internal/model/llm"
	"agent-platform/internal/search"
	"agent-platform/pkg/log"
)

// 停止标记
const (
	MarkerSearch = "</search>"
	MarkerAnswer = "</answer>"
)

// NotFound 整个对话中没有 <answer> 段时的返回值
const NotFound = "No results found."

// DefaultMaxTurns 首轮之外的额外轮数
const DefaultMaxTurns = 2

var (
	searchPattern = regexp.MustCompile(`(?s)<search>(.*?)</search>`)
	answerPattern = regexp.MustCompile(`(?s)<answer>(.*?)</answer>`)
)

var errEmptyQuery = errors.New("empty search query")

// Config 子代理参数
type Config struct {
	// MaxTurns 首轮之外的额外轮数，模型调用最多 MaxTurns+1 次
	MaxTurns   int
	NumResults int
	Options    llm.GenerateOptions
}

// Result 一次运行的结果
type Result struct {
	Answer     string
	Found      bool
	Messages   []llm.Message
	ModelCalls int
	Searches   int
}

// Agent 子代理。无状态，可被多个会话并发使用。
type Agent struct {
	client   llm.Client
	searcher search.Provider
	cfg      Config
	logger   *log.Logger
}

// New 创建子代理；MaxTurns < 0 时按 0 处理，为 0 时只有一轮且只允许 </answer>
func New(client llm.Client, searcher search.Provider, cfg Config, logger *log.Logger) *Agent {
	if cfg.MaxTurns < 0 {
		cfg.MaxTurns = 0
	}
	if cfg.NumResults <= 0 {
		cfg.NumResults = search.DefaultNumResults
	}
	return &Agent{client: client, searcher: searcher, cfg: cfg, logger: logger.Component("websearch")}
}

// MaxTurns 返回额外轮数
func (a *Agent) MaxTurns() int { return a.cfg.MaxTurns }

// StopMarkers 第 turn 轮（从 0 开始）允许的停止标记；最后一轮只有 </answer>
func StopMarkers(turn, maxTurns int) []string {
	if turn >= maxTurns {
		return []string{MarkerAnswer}
	}
	return []string{MarkerAnswer, MarkerSearch}
}

// Run 执行推理循环。模型调用失败时立即返回错误与已有记录；搜索失败写入 <information> 由模型自行处理。
func (a *Agent) Run(ctx context.Context, prompt string) (*Result, error) {
	res := &Result{Messages: []llm.Message{{Role: llm.RoleUser, Content: instruction + " " + prompt + "\n"}}}

	for turn := 0; turn <= a.cfg.MaxTurns; turn++ {
		opts := a.cfg.Options
		opts.Stop = StopMarkers(turn, a.cfg.MaxTurns)

		out, err := a.client.ChatCompletion(ctx, res.Messages, opts)
		res.ModelCalls++
		if err != nil {
			return res, err
		}
		marker, content := haltMarker(out, opts.Stop)
		a.logger.Debug("turn finished", "turn", turn, "marker", marker, "finish_reason", out.FinishReason)

		if marker == "" {
			res.Messages = append(res.Messages, llm.Message{Role: llm.RoleAssistant, Content: content})
			break
		}
		content += marker
		res.Messages = append(res.Messages, llm.Message{Role: llm.RoleAssistant, Content: content})
		if marker == MarkerAnswer {
			break
		}
		res.Messages = append(res.Messages, llm.Message{Role: llm.RoleTool, Content: "<information>" + a.search(ctx, content, res) + "</information>"})
	}

	res.Answer, res.Found = finalAnswer(res.Messages[1:])
	return res, nil
}

func (a *Agent) search(ctx context.Context, content string, res *Result) string {
	query, ok := lastSearchQuery(content)
	if !ok {
		return search.Format(nil, errEmptyQuery)
	}
	res.Searches++
	results, err := a.searcher.Search(ctx, query, a.cfg.NumResults)
	if err != nil {
		a.logger.Warn("search failed inside sub-agent", "query", query, "error", err)
	}
	return search.Format(results, err)
}

// haltMarker 判断生成因哪个允许的标记停止，返回标记与去掉标记后的文本。
// 提供商回报 StopReason 时以其为准；只给出 finish_reason=stop 时按未闭合的开标签推断。
func haltMarker(out *llm.Completion, allowed []string) (string, string) {
	content := out.Content
	for _, m := range allowed {
		if trimmed := strings.TrimRight(content, " \t\r\n"); strings.HasSuffix(trimmed, m) {
			return m, strings.TrimSuffix(trimmed, m)
		}
	}
	if reason := strings.TrimSpace(out.StopReason); reason != "" {
		for _, m := range allowed {
			if reason == m {
				return m, content
			}
		}
		return "", content
	}
	if out.FinishReason != llm.FinishStop {
		return "", content
	}
	best, bestAt := "", -1
	for _, m := range allowed {
		open := "<" + strings.TrimPrefix(m, "</")
		at := strings.LastIndex(content, open)
		if at > strings.LastIndex(content, m) && at > bestAt {
			best, bestAt = m, at
		}
	}
	return best, content
}

func lastSearchQuery(content string) (string, bool) {
	matches := searchPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return "", false
	}
	q := strings.TrimSpace(matches[len(matches)-1][1])
	return q, q != ""
}

// finalAnswer 在模型与工具轮次中取最后一个 <answer> 段
func finalAnswer(turns []llm.Message) (string, bool) {
	var b strings.Builder
	for _, m := range turns {
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	matches := answerPattern.FindAllStringSubmatch(b.String(), -1)
	if len(matches) == 0 {
		return NotFound, false
	}
	return strings.TrimSpace(matches[len(matches)-1][1]), true
}
