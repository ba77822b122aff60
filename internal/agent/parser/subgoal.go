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

package parser

import (
	"regexp"
	"strings"

	"agent-platform/pkg/errors"
)

var subgoalPattern = regexp.MustCompile(`(?s)Context:\s*(.*?)Sub-Goal:\s*(.*?)Tool Name:\s*(.*?)(?:\n\n|\z)`)

// NextStep 结构化输出的下一步决策
type NextStep struct {
	Context  string `json:"context"`
	SubGoal  string `json:"sub_goal"`
	ToolName string `json:"tool_name"`
}

// Subgoal 子目标解析结果，ToolName 为注册表中的工具名或未匹配哨兵
type Subgoal struct {
	Context  string
	SubGoal  string
	ToolName string
}

// ExtractSubgoal 从 NextStep 或 "Context: ... Sub-Goal: ... Tool Name: ..." 文本中提取子目标。
// 多处匹配时以最后一处为准；任何失败都返回 ok=false，调用方应当重新规划。
func ExtractSubgoal(response any, tools []string) (sg Subgoal, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			sg, ok = Subgoal{}, false
		}
	}()

	var rawTool string
	switch r := response.(type) {
	case *NextStep:
		if r == nil {
			return Subgoal{}, false
		}
		sg.Context, sg.SubGoal, rawTool = r.Context, r.SubGoal, r.ToolName
	case NextStep:
		sg.Context, sg.SubGoal, rawTool = r.Context, r.SubGoal, r.ToolName
	case string:
		text := strings.ReplaceAll(r, "**", "")
		matches := subgoalPattern.FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			return Subgoal{}, false
		}
		last := matches[len(matches)-1]
		sg.Context, sg.SubGoal, rawTool = last[1], last[2], last[3]
	default:
		return Subgoal{}, false
	}
	sg.Context = strings.TrimSpace(sg.Context)
	sg.SubGoal = strings.TrimSpace(sg.SubGoal)
	sg.ToolName = NormalizeToolName(strings.TrimSpace(rawTool), tools)
	return sg, true
}

// NormalizeToolName 大小写不敏感的子串匹配：按注册顺序返回第一个名字出现在 raw 中（或包含 raw）的工具。
// 名字重叠时该顺序决定结果，不做最长匹配。无匹配时返回 "No matched tool given: <raw>"。
func NormalizeToolName(raw string, tools []string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower != "" {
		for _, t := range tools {
			lt := strings.ToLower(t)
			if lt == "" {
				continue
			}
			if strings.Contains(lower, lt) || strings.Contains(lt, lower) {
				return t
			}
		}
	}
	return errors.UnmatchedToolPrefix + raw
}

// IsUnmatched 工具名是否为未匹配哨兵
func IsUnmatched(toolName string) bool {
	return toolName == "" || strings.HasPrefix(toolName, errors.UnmatchedToolPrefix)
}
