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

// Package parser 把模型的自由文本输出转换为结构化决策：工具调用、子目标与 STOP/CONTINUE 结论。
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"agent-platform/internal/tool"
	"agent-platform/pkg/errors"
	"agent-platform/pkg/log"
)

var (
	toolCallBlock = regexp.MustCompile(`(?s)<tool_call>(.*?)</tool_call>`)
	codeFence     = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
)

// ToolCallParser 从 <tool_call>...</tool_call> 块中解析工具调用。支持三种格式：
//
//	{"name": "Perplexity_Tool", "arguments": {"prompt": "abc"}}
//	Perplexity_Tool(prompt="abc")
//	[Perplexity_Tool(prompt="abc")]
//
// 以及单引号键的字面量映射 {'name': ..., 'arguments': {...}}。参数只按字面量求值。
type ToolCallParser struct {
	logger *log.Logger
}

// NewToolCallParser logger 可为 nil
func NewToolCallParser(logger *log.Logger) *ToolCallParser {
	if logger == nil {
		logger = log.Nop()
	}
	return &ToolCallParser{logger: logger}
}

// Extract 返回最后一个调用块中的工具调用。
// 没有调用块、块为空或 name 为空时返回 (nil, nil)；块存在但无法解析时返回 *errors.ParseError。
// 一次只支持一个调用，列表中多余的调用被丢弃并记录告警。
func (p *ToolCallParser) Extract(raw string) (*tool.Call, error) {
	body, ok := lastToolCallBlock(raw)
	if !ok || body == "" {
		return nil, nil
	}
	call, dropped, err := parseCallBody(body)
	if err != nil {
		return nil, &errors.ParseError{Text: body, Err: err}
	}
	if call == nil || call.Name == "" {
		return nil, nil
	}
	if dropped > 0 {
		p.logger.Warn("only the first tool call is executed", "tool", call.Name, "dropped", dropped)
	}
	return call, nil
}

// ExtractToolCall 使用不记录日志的解析器
func ExtractToolCall(raw string) (*tool.Call, error) {
	return NewToolCallParser(nil).Extract(raw)
}

// HasToolCallBlock 文本中是否存在调用块
func HasToolCallBlock(raw string) bool {
	return toolCallBlock.MatchString(raw)
}

func lastToolCallBlock(raw string) (string, bool) {
	matches := toolCallBlock.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return "", false
	}
	body := strings.TrimSpace(matches[len(matches)-1][1])
	if m := codeFence.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}
	return body, true
}

// parseCallBody 先按 JSON 解析，失败后按字面量语法解析
func parseCallBody(body string) (*tool.Call, int, error) {
	if v, err := parseJSON(body); err == nil {
		return callFromValue(v)
	}
	if strings.HasPrefix(body, "{") {
		v, err := parseLiteral(body)
		if err != nil {
			return nil, 0, err
		}
		return callFromValue(v)
	}
	return parseFunctionCall(body)
}

func callFromValue(v any) (*tool.Call, int, error) {
	switch x := v.(type) {
	case orderedObject:
		c, err := callFromObject(x)
		return c, 0, err
	case []any:
		if len(x) == 0 {
			return nil, 0, nil
		}
		obj, ok := x[0].(orderedObject)
		if !ok {
			return nil, 0, fmt.Errorf("expected a list of call objects")
		}
		c, err := callFromObject(obj)
		return c, len(x) - 1, err
	default:
		return nil, 0, fmt.Errorf("expected an object with name and arguments, got %T", v)
	}
}

func callFromObject(obj orderedObject) (*tool.Call, error) {
	if len(obj) == 0 {
		return nil, nil
	}
	rawName, _ := obj.get("name")
	name, ok := rawName.(string)
	if rawName != nil && !ok {
		return nil, fmt.Errorf("name must be a string, got %T", rawName)
	}
	call := &tool.Call{Name: strings.TrimSpace(name)}

	rawArgs, _ := obj.get("arguments")
	switch a := rawArgs.(type) {
	case nil:
	case orderedObject:
		for _, arg := range a {
			call.Args = append(call.Args, tool.Arg{Name: arg.Name, Value: plain(arg.Value)})
		}
	case string:
		// OpenAI 风格：arguments 是 JSON 字符串
		if strings.TrimSpace(a) == "" {
			break
		}
		inner, err := parseJSON(a)
		if err != nil {
			return nil, fmt.Errorf("arguments: %w", err)
		}
		args, ok := inner.(orderedObject)
		if !ok {
			return nil, fmt.Errorf("arguments must be an object")
		}
		for _, arg := range args {
			call.Args = append(call.Args, tool.Arg{Name: arg.Name, Value: plain(arg.Value)})
		}
	default:
		return nil, fmt.Errorf("arguments must be an object, got %T", rawArgs)
	}
	return call, nil
}
