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

package planner

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-platform/internal/model/llm"
	"agent-platform/internal/model/llm/llmtest"
	"agent-platform/internal/tool"
	"agent-platform/internal/tool/registry"
	perrors "agent-platform/pkg/errors"
)

type echoTool struct{}

func (echoTool) Name() string { return "Echo_Tool" }
func (echoTool) Metadata() tool.Metadata {
	return tool.Metadata{Name: "Echo_Tool", Description: "echoes text", InputTypes: map[string]string{"text": "str"}}
}
func (echoTool) Execute(ctx context.Context, input map[string]any) (tool.ToolResult, error) {
	return tool.ToolResult{Content: "echo: " + tool.StringArg(input, "text")}, nil
}

type panicTool struct{}

func (panicTool) Name() string { return "Panic_Tool" }
func (panicTool) Metadata() tool.Metadata { return tool.Metadata{Name: "Panic_Tool"} }
func (panicTool) Execute(context.Context, map[string]any) (tool.ToolResult, error) {
	panic("kaboom")
}

type failingTool struct{}

func (failingTool) Name() string { return "Failing_Tool" }
func (failingTool) Metadata() tool.Metadata { return tool.Metadata{Name: "Failing_Tool"} }
func (failingTool) Execute(context.Context, map[string]any) (tool.ToolResult, error) {
	return tool.ToolResult{}, errors.New("backend unavailable")
}

// scriptedModel 按提示词类型分派回复
type scriptedModel struct {
	decide  func(n int) llmtest.Reply
	verify  func(n int) string
	command string
	decides atomic.Int32
	verifys atomic.Int32
}

func (m *scriptedModel) client() *llmtest.Client {
	return &llmtest.Client{Respond: func(msgs []llm.Message, _ llm.GenerateOptions) llmtest.Reply {
		text := msgs[0].Content
		switch {
		case strings.Contains(text, "expert in composing functions") || strings.Contains(text, "planning assistant"):
			return m.decide(int(m.decides.Add(1)))
		case strings.Contains(text, "Thoroughly evaluate the completeness"):
			n := int(m.verifys.Add(1))
			if m.verify == nil {
				return llmtest.Text("Explanation: enough.\nConclusion: STOP")
			}
			return llmtest.Text(m.verify(n))
		case strings.Contains(text, "Generate a precise command"):
			return llmtest.Text(m.command)
		case strings.Contains(text, "Analyze the given query"):
			return llmtest.Text("analysis of the query")
		case strings.Contains(text, "Generate the final output"):
			return llmtest.Text("final output")
		case strings.Contains(text, "Please generate the concise output"):
			return llmtest.Text("direct output")
		default:
			return llmtest.Text("base answer")
		}
	}}
}

func echoCall(text string) llmtest.Reply {
	return llmtest.Text(`<think>need echo</think><tool_call>{"name": "Echo_Tool", "arguments": {"text": "` + text + `"}}</tool_call>`)
}

func newPlanner(t *testing.T, client llm.Client, format string, cfg Config) *Planner {
	t.Helper()
	reg := registry.New()
	reg.Register(echoTool{})
	reg.Register(panicTool{})
	reg.Register(failingTool{})
	p, err := New(Options{Client: client, Tools: reg, DecisionFormat: format, Config: cfg})
	require.NoError(t, err)
	return p
}

func assertInvariants(t *testing.T, res *Result, maxSteps int) {
	t.Helper()
	assert.LessOrEqual(t, res.StepCount, maxSteps)
	require.Len(t, res.Memory, res.StepCount)
	for i, st := range res.Memory {
		assert.Equal(t, i, st.Index)
		known := st.ToolName == "Echo_Tool" || st.ToolName == "Panic_Tool" || st.ToolName == "Failing_Tool"
		assert.True(t, known || strings.HasPrefix(st.ToolName, perrors.UnmatchedToolPrefix), st.ToolName)
	}
}

func TestRun_StopsWhenVerified(t *testing.T) {
	m := &scriptedModel{decide: func(int) llmtest.Reply { return echoCall("hello") }}
	p := newPlanner(t, m.client(), "tool_call", Config{MaxSteps: 5})

	res, err := p.Run(context.Background(), Query{Text: "say hello", PID: "7"})
	require.NoError(t, err)
	assertInvariants(t, res, 5)

	assert.Equal(t, StopVerified, res.StopReason)
	assert.Equal(t, 1, res.StepCount)
	assert.Equal(t, "7", res.PID)
	assert.Equal(t, "analysis of the query", res.QueryAnalysis)
	assert.Equal(t, "final output", res.FinalOutput)
	assert.Equal(t, "direct output", res.DirectOutput)
	assert.Empty(t, res.BaseResponse)

	st := res.Memory[0]
	assert.Equal(t, "Echo_Tool", st.ToolName)
	assert.Equal(t, "need echo", st.Context)
	assert.Equal(t, "echo: hello", st.Result.Content)
	assert.Equal(t, `Echo_Tool(text="hello")`, st.Call.String())
}

func TestRun_BudgetSkipsLastVerification(t *testing.T) {
	m := &scriptedModel{
		decide: func(n int) llmtest.Reply { return echoCall("again") },
		verify: func(int) string { return "Conclusion: CONTINUE" },
	}
	p := newPlanner(t, m.client(), "tool_call", Config{MaxSteps: 3})

	res, err := p.Run(context.Background(), Query{Text: "loop"})
	require.NoError(t, err)
	assertInvariants(t, res, 3)
	assert.Equal(t, StopBudget, res.StopReason)
	assert.Equal(t, 3, res.StepCount)
	assert.EqualValues(t, 3, m.decides.Load())
	assert.EqualValues(t, 2, m.verifys.Load())
}

func TestRun_FailedDecisionsConsumeSteps(t *testing.T) {
	replies := []llmtest.Reply{
		llmtest.Text("<tool_call></tool_call>"),
		llmtest.Text("<tool_call>Echo_Tool(text=undefined_name)</tool_call>"),
		llmtest.Text(`<tool_call>{"name": "Calculator", "arguments": {}}</tool_call>`),
		llmtest.Fail(&perrors.RemoteCallError{Op: "chat", Provider: "test", Attempts: 5, Err: errors.New("503")}),
		llmtest.Text("I cannot decide."),
	}
	m := &scriptedModel{
		decide: func(n int) llmtest.Reply { return replies[n-1] },
		verify: func(int) string { return "Conclusion: CONTINUE" },
	}
	p := newPlanner(t, m.client(), "tool_call", Config{MaxSteps: 5})

	res, err := p.Run(context.Background(), Query{Text: "q"})
	require.NoError(t, err)
	assertInvariants(t, res, 5)
	assert.Equal(t, StopBudget, res.StopReason)
	require.Equal(t, 5, res.StepCount)

	for _, st := range res.Memory {
		assert.True(t, strings.HasPrefix(st.ToolName, perrors.UnmatchedToolPrefix), st.ToolName)
		assert.True(t, st.Failed())
	}
	assert.Contains(t, res.Memory[0].Result.Err, "no tool call")
	assert.Contains(t, res.Memory[1].Result.Err, "could not parse")
	assert.Equal(t, perrors.UnmatchedToolPrefix+"Calculator", res.Memory[2].ToolName)
	assert.Contains(t, res.Memory[3].Result.Err, "decision failed")
	assert.Contains(t, res.Memory[4].Result.Err, "no tool call")
}

func TestRun_ToolFailuresAreRecorded(t *testing.T) {
	replies := []llmtest.Reply{
		llmtest.Text(`<tool_call>{"name": "Panic_Tool", "arguments": {}}</tool_call>`),
		llmtest.Text(`<tool_call>[Failing_Tool()]</tool_call>`),
	}
	m := &scriptedModel{
		decide: func(n int) llmtest.Reply { return replies[n-1] },
		verify: func(int) string { return "Conclusion: CONTINUE" },
	}
	p := newPlanner(t, m.client(), "tool_call", Config{MaxSteps: 2})

	res, err := p.Run(context.Background(), Query{Text: "q"})
	require.NoError(t, err)
	require.Equal(t, 2, res.StepCount)
	assert.Equal(t, "Panic_Tool", res.Memory[0].ToolName)
	assert.Contains(t, res.Memory[0].Result.Err, "kaboom")
	assert.Equal(t, "Failing_Tool", res.Memory[1].ToolName)
	assert.Equal(t, "backend unavailable", res.Memory[1].Result.Err)
}

func TestRun_SubgoalFormat(t *testing.T) {
	m := &scriptedModel{
		decide:  func(int) llmtest.Reply { return llmtest.Text("**Context:** nothing yet\n**Sub-Goal:** echo the word\n**Tool Name:** echo") },
		command: `Here it is: <tool_call>Echo_Tool(text="word")</tool_call>`,
	}
	p := newPlanner(t, m.client(), "subgoal", Config{MaxSteps: 3})
	assert.Equal(t, "subgoal", p.DecisionFormat())

	res, err := p.Run(context.Background(), Query{Text: "echo word"})
	require.NoError(t, err)
	require.Equal(t, 1, res.StepCount)
	st := res.Memory[0]
	assert.Equal(t, "Echo_Tool", st.ToolName)
	assert.Equal(t, "nothing yet", st.Context)
	assert.Equal(t, "echo the word", st.SubGoal)
	assert.Equal(t, "echo: word", st.Result.Content)
}

func TestRun_SubgoalUnmatchedTool(t *testing.T) {
	m := &scriptedModel{
		decide: func(int) llmtest.Reply { return llmtest.Text("Context: c\nSub-Goal: g\nTool Name: Telescope_Tool") },
		verify: func(int) string { return "Conclusion: CONTINUE" },
	}
	p := newPlanner(t, m.client(), "subgoal", Config{MaxSteps: 1})
	res, err := p.Run(context.Background(), Query{Text: "q"})
	require.NoError(t, err)
	require.Equal(t, 1, res.StepCount)
	assert.Equal(t, perrors.UnmatchedToolPrefix+"Telescope_Tool", res.Memory[0].ToolName)
	assert.True(t, res.Memory[0].Failed())
}

func TestRun_TimeoutCheckedBetweenSteps(t *testing.T) {
	m := &scriptedModel{decide: func(int) llmtest.Reply { return echoCall("x") }}
	p := newPlanner(t, m.client(), "tool_call", Config{MaxSteps: 5, MaxTime: time.Second})
	start := time.Now()
	var calls atomic.Int32
	p.now = func() time.Time {
		if calls.Add(1) == 1 {
			return start
		}
		return start.Add(time.Hour)
	}
	res, err := p.Run(context.Background(), Query{Text: "q"})
	require.NoError(t, err)
	assert.Equal(t, StopTimeout, res.StopReason)
	assert.Zero(t, res.StepCount)
	assert.Equal(t, "final output", res.FinalOutput)
}

func TestRun_Cancelled(t *testing.T) {
	m := &scriptedModel{decide: func(int) llmtest.Reply { return echoCall("x") }}
	p := newPlanner(t, m.client(), "tool_call", Config{MaxSteps: 5})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := p.Run(ctx, Query{Text: "q"})
	require.NoError(t, err)
	assert.Equal(t, StopCancelled, res.StopReason)
	assert.Zero(t, res.StepCount)
	assert.Empty(t, res.FinalOutput)
}

func TestRun_BaseResponse(t *testing.T) {
	m := &scriptedModel{decide: func(int) llmtest.Reply { return echoCall("x") }}
	p := newPlanner(t, m.client(), "tool_call", Config{MaxSteps: 2, OutputTypes: []string{OutputBase, OutputDirect}})
	res, err := p.Run(context.Background(), Query{Text: "what is 2+2?"})
	require.NoError(t, err)
	assert.Equal(t, "base answer", res.BaseResponse)
	assert.Empty(t, res.FinalOutput)
	assert.Equal(t, "direct output", res.DirectOutput)
}

func TestRun_QueryOverridesBudget(t *testing.T) {
	m := &scriptedModel{
		decide: func(int) llmtest.Reply { return echoCall("x") },
		verify: func(int) string { return "Conclusion: CONTINUE" },
	}
	p := newPlanner(t, m.client(), "tool_call", Config{MaxSteps: 10})
	res, err := p.Run(context.Background(), Query{Text: "q", MaxSteps: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, res.StepCount)
}

func TestRun_ConcurrentSessionsDoNotShareState(t *testing.T) {
	client := &llmtest.Client{Respond: func(msgs []llm.Message, _ llm.GenerateOptions) llmtest.Reply {
		text := msgs[0].Content
		switch {
		case strings.Contains(text, "expert in composing functions"):
			// 用户消息即问题文本，回显它以区分会话
			return echoCall(msgs[1].Content)
		case strings.Contains(text, "Thoroughly evaluate the completeness"):
			return llmtest.Text("Conclusion: STOP")
		default:
			return llmtest.Text("out")
		}
	}}
	p := newPlanner(t, client, "tool_call", Config{MaxSteps: 3})

	var wg sync.WaitGroup
	results := make([]*Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := p.Run(context.Background(), Query{Text: "session-" + string(rune('a'+i))})
			if err == nil {
				results[i] = res
			}
		}(i)
	}
	wg.Wait()
	ids := map[string]bool{}
	for i, res := range results {
		require.NotNil(t, res)
		require.Len(t, res.Memory, 1)
		assert.Equal(t, "echo: session-"+string(rune('a'+i)), res.Memory[0].Result.Content)
		ids[res.SessionID] = true
	}
	assert.Len(t, ids, len(results))
}

func TestRun_EmptyQuery(t *testing.T) {
	p := newPlanner(t, llmtest.New(), "tool_call", Config{})
	_, err := p.Run(context.Background(), Query{Text: "  "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestNew_RejectsUnknownFormat(t *testing.T) {
	_, err := New(Options{Client: llmtest.New(), DecisionFormat: "xml"})
	assert.ErrorIs(t, err, perrors.ErrConfiguration)
}

func TestLoadImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 12, 7))))
	require.NoError(t, f.Close())

	info, imgs := LoadImage(path)
	assert.Equal(t, ImageInfo{Path: path, Width: 12, Height: 7}, info)
	require.Len(t, imgs, 1)
	assert.Equal(t, "image/png", imgs[0].MIMEType)

	info, imgs = LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	assert.Equal(t, ImageInfo{}, info)
	assert.Nil(t, imgs)
	assert.Equal(t, "{}", info.String())
}
