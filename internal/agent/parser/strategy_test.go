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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var registryOrder = []string{"Generalist_Solution_Generator_Tool", "Google_Search_Tool", "Web_Agent_Tool", "URL_Text_Extractor_Tool"}

func TestNormalizeToolName(t *testing.T) {
	assert.Equal(t, "Google_Search_Tool", NormalizeToolName("google_search_tool", registryOrder))
	assert.Equal(t, "Web_Agent_Tool", NormalizeToolName("Use the Web_Agent_Tool here", registryOrder))
	assert.Equal(t, "URL_Text_Extractor_Tool", NormalizeToolName("url_text_extractor", registryOrder))

	got := NormalizeToolName("Wikipedia_Tool", registryOrder)
	assert.True(t, strings.HasPrefix(got, "No matched tool given:"))
	assert.Equal(t, "No matched tool given: Wikipedia_Tool", got)
	assert.True(t, IsUnmatched(got))
	assert.True(t, IsUnmatched(NormalizeToolName("", registryOrder)))
}

func TestNormalizeToolName_RegistryOrderTieBreak(t *testing.T) {
	tools := []string{"Search_Tool", "Google_Search_Tool"}
	assert.Equal(t, "Search_Tool", NormalizeToolName("Google_Search_Tool", tools))
	assert.Equal(t, "Google_Search_Tool", NormalizeToolName("Google_Search_Tool", []string{"Google_Search_Tool", "Search_Tool"}))
	// 精确命中优先只在 tool_call 策略的 ResolveToolName 中生效
	assert.Equal(t, "Google_Search_Tool", ResolveToolName("Google_Search_Tool", tools))
}

func TestExtractSubgoal_Text(t *testing.T) {
	resp := `**Context:** first try
**Sub-Goal:** search
**Tool Name:** Google_Search_Tool

Revised plan:
Context: The query asks for the 2023 population.
Sub-Goal: Find the official census figure.
Tool Name: web_agent_tool`
	sg, ok := ExtractSubgoal(resp, registryOrder)
	require.True(t, ok)
	assert.Equal(t, "The query asks for the 2023 population.", sg.Context)
	assert.Equal(t, "Find the official census figure.", sg.SubGoal)
	assert.Equal(t, "Web_Agent_Tool", sg.ToolName)
}

func TestExtractSubgoal_Structured(t *testing.T) {
	sg, ok := ExtractSubgoal(&NextStep{Context: " c ", SubGoal: " g ", ToolName: " Unknown "}, registryOrder)
	require.True(t, ok)
	assert.Equal(t, "c", sg.Context)
	assert.Equal(t, "g", sg.SubGoal)
	assert.Equal(t, "No matched tool given: Unknown", sg.ToolName)
}

func TestExtractSubgoal_Failure(t *testing.T) {
	for _, in := range []any{"no labels at all", 42, (*NextStep)(nil), nil} {
		sg, ok := ExtractSubgoal(in, registryOrder)
		assert.False(t, ok)
		assert.Equal(t, Subgoal{}, sg)
	}
}

func TestExtractConclusion(t *testing.T) {
	cases := []struct {
		in   any
		want Decision
	}{
		{"Explanation: all covered.\nConclusion: STOP", Stop},
		{"Conclusion: stop\n...\n**Conclusion**: **CONTINUE**", Continue},
		{"conclusion:continue", Continue},
		{"Conclusion: maybe. We should stop here.", Stop},
		{"Conclusion: unsure, continue looking", Continue},
		{"The evidence is thin.", Continue},
		{"", Continue},
		{&MemoryVerification{Analysis: "done", StopSignal: true}, Stop},
		{MemoryVerification{StopSignal: false}, Continue},
		{(*MemoryVerification)(nil), Continue},
		{123, Continue},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ExtractConclusion(c.in).Decision, "%v", c.in)
	}
	assert.Equal(t, "done", ExtractConclusion(&MemoryVerification{Analysis: "done", StopSignal: true}).Analysis)
	assert.Equal(t, "Conclusion: STOP", ExtractConclusion("Conclusion: STOP").Analysis)
}

func TestDecisionParser_ToolCall(t *testing.T) {
	p, err := NewDecisionParser(FormatToolCall, nil)
	require.NoError(t, err)
	assert.Equal(t, FormatToolCall, p.Format())

	act, err := p.Parse(`<think>Need fresh facts.</think> <tool_call>{"name": "google_search", "arguments": {"query": "x"}}</tool_call>`, registryOrder)
	require.NoError(t, err)
	assert.Equal(t, "Need fresh facts.", act.Context)
	assert.Equal(t, "Google_Search_Tool", act.ToolName)
	assert.Equal(t, "x", act.Call.Map()["query"])
	assert.False(t, act.NeedsCommand)

	act, err = p.Parse("None of the tools apply. <tool_call></tool_call>", registryOrder)
	require.NoError(t, err)
	assert.Nil(t, act.Call)
	assert.Equal(t, "None of the tools apply.", act.Context)

	_, err = p.Parse("<tool_call>Tool(bad</tool_call>", registryOrder)
	assert.Error(t, err)
}

func TestDecisionParser_Subgoal(t *testing.T) {
	p, err := NewDecisionParser(FormatSubgoal, nil)
	require.NoError(t, err)

	act, err := p.Parse("Context: c\nSub-Goal: g\nTool Name: Google_Search_Tool", registryOrder)
	require.NoError(t, err)
	assert.Equal(t, "Google_Search_Tool", act.ToolName)
	assert.True(t, act.NeedsCommand)
	assert.Nil(t, act.Call)

	act, err = p.Parse("Context: c\nSub-Goal: g\nTool Name: Calculator", registryOrder)
	require.NoError(t, err)
	assert.True(t, IsUnmatched(act.ToolName))
	assert.False(t, act.NeedsCommand)

	_, err = p.Parse("nothing useful", registryOrder)
	assert.ErrorIs(t, err, ErrNoSubgoal)
}

func TestNewDecisionParser_Unknown(t *testing.T) {
	_, err := NewDecisionParser("xml", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent.decision_format")
}
