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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agent-platform/internal/agent/planner"
	"agent-platform/internal/runtime/jobstore"
	"agent-platform/internal/tool"
	"agent-platform/internal/tool/registry"
)

type fakeSolver struct {
	mu    sync.Mutex
	calls []planner.Query
	err   error
}

func (f *fakeSolver) Run(ctx context.Context, q planner.Query) (*planner.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &planner.Result{PID: q.PID, Query: q.Text, DirectOutput: "Answer: B", StepCount: 1, StopReason: planner.StopVerified}, nil
}

type stubTool struct{ name string }

func (s stubTool) Name() string { return s.name }
func (s stubTool) Metadata() tool.Metadata {
	return tool.Metadata{Name: s.name, Description: "stub", InputTypes: map[string]string{"query": "str"}, OutputType: "str"}
}
func (s stubTool) Execute(ctx context.Context, input map[string]any) (tool.ToolResult, error) {
	return tool.ToolResult{Content: s.name}, nil
}

func body(s string) *ut.Body {
	return &ut.Body{Body: bytes.NewReader([]byte(s)), Len: len(s)}
}

func newTestServer(h *Handler) *server.Hertz {
	s := server.Default(server.WithHostPorts(":0"))
	s.GET("/api/health", h.HealthCheck)
	s.POST("/api/solve", h.Solve)
	s.GET("/api/runs", h.ListRuns)
	s.GET("/api/runs/:id", h.GetRun)
	s.GET("/api/tools", h.ListTools)
	s.GET("/metrics", h.Metrics)
	return s
}

func TestHealthCheck(t *testing.T) {
	h := NewHandler(nil, nil, nil, nil)
	s := server.Default(server.WithHostPorts(":0"))
	s.GET("/api/health", func(ctx context.Context, c *app.RequestContext) {
		h.HealthCheck(ctx, c)
	})
	w := ut.PerformRequest(s.Engine, "GET", "/api/health", body(""))
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Errorf("HealthCheck status: got %d", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("ok")) {
		t.Errorf("HealthCheck body: %s", resp.Body())
	}
}

func TestSolve_Sync(t *testing.T) {
	solver := &fakeSolver{}
	store := jobstore.NewMemoryStore()
	s := newTestServer(NewHandler(solver, store, nil, nil))

	w := ut.PerformRequest(s.Engine, "POST", "/api/solve", body(`{"pid":"7","query":"What is 2+2?","max_steps":3,"max_time":1.5}`),
		ut.Header{Key: "Content-Type", Value: "application/json"})
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode(), string(resp.Body()))

	var run jobstore.Run
	require.NoError(t, json.Unmarshal(resp.Body(), &run))
	assert.Equal(t, jobstore.StatusCompleted, run.Status)
	require.NotNil(t, run.Result)
	assert.Equal(t, "Answer: B", run.DirectOutput)

	require.Len(t, solver.calls, 1)
	assert.Equal(t, planner.Query{PID: "7", Text: "What is 2+2?", MaxSteps: 3, MaxTime: 1500 * time.Millisecond}, solver.calls[0])

	stored, err := store.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusCompleted, stored.Status)

	w = ut.PerformRequest(s.Engine, "GET", "/api/runs/"+run.ID, body(""))
	assert.Equal(t, 200, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), `"direct_output":"Answer: B"`)
}

func TestSolve_Failure(t *testing.T) {
	solver := &fakeSolver{err: errors.New("model unavailable")}
	s := newTestServer(NewHandler(solver, nil, nil, nil))

	w := ut.PerformRequest(s.Engine, "POST", "/api/solve", body(`{"query":"q"}`), ut.Header{Key: "Content-Type", Value: "application/json"})
	resp := w.Result()
	assert.Equal(t, 500, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), "model unavailable")
	assert.Contains(t, string(resp.Body()), `"status":"failed"`)
}

func TestSolve_Validation(t *testing.T) {
	s := newTestServer(NewHandler(&fakeSolver{}, nil, nil, nil))
	cases := map[string]string{
		"missing query": `{"pid":"1"}`,
		"bad json":      `{"query":`,
		"negative":      `{"query":"q","max_steps":-1}`,
	}
	for name, b := range cases {
		w := ut.PerformRequest(s.Engine, "POST", "/api/solve", body(b), ut.Header{Key: "Content-Type", Value: "application/json"})
		assert.Equal(t, 400, w.Result().StatusCode(), name)
	}

	noSolver := newTestServer(NewHandler(nil, nil, nil, nil))
	w := ut.PerformRequest(noSolver.Engine, "POST", "/api/solve", body(`{"query":"q"}`), ut.Header{Key: "Content-Type", Value: "application/json"})
	assert.Equal(t, 503, w.Result().StatusCode())
}

func TestSolve_Async(t *testing.T) {
	solver := &fakeSolver{}
	store := jobstore.NewMemoryStore()
	h := NewHandler(solver, store, nil, nil)
	s := newTestServer(h)

	w := ut.PerformRequest(s.Engine, "POST", "/api/solve", body(`{"query":"q","async":true}`), ut.Header{Key: "Content-Type", Value: "application/json"})
	resp := w.Result()
	require.Equal(t, 202, resp.StatusCode())
	var accepted map[string]string
	require.NoError(t, json.Unmarshal(resp.Body(), &accepted))
	require.NotEmpty(t, accepted["run_id"])

	h.Wait()
	run, err := store.Get(context.Background(), accepted["run_id"])
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusCompleted, run.Status)
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestServer(NewHandler(nil, nil, nil, nil))
	w := ut.PerformRequest(s.Engine, "GET", "/api/runs/nope", body(""))
	assert.Equal(t, 404, w.Result().StatusCode())
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	store := jobstore.NewMemoryStore()
	require.NoError(t, store.Create(ctx, &jobstore.Run{ID: "a", Status: jobstore.StatusCompleted}))
	require.NoError(t, store.Create(ctx, &jobstore.Run{ID: "b", Status: jobstore.StatusFailed}))
	require.NoError(t, store.Create(ctx, &jobstore.Run{ID: "c", Status: jobstore.StatusCompleted}))
	s := newTestServer(NewHandler(nil, store, nil, nil))

	w := ut.PerformRequest(s.Engine, "GET", "/api/runs?status=completed", body(""))
	require.Equal(t, 200, w.Result().StatusCode())
	var out struct {
		Runs  []jobstore.Run `json:"runs"`
		Total int            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Result().Body(), &out))
	assert.Equal(t, 2, out.Total)

	w = ut.PerformRequest(s.Engine, "GET", "/api/runs?limit=x", body(""))
	assert.Equal(t, 400, w.Result().StatusCode())
}

func TestListTools(t *testing.T) {
	reg := registry.New()
	reg.Register(stubTool{name: "Google_Search_Tool"})
	reg.Register(stubTool{name: "Web_Agent_Tool"})
	s := newTestServer(NewHandler(nil, nil, reg, nil))

	w := ut.PerformRequest(s.Engine, "GET", "/api/tools", body(""))
	require.Equal(t, 200, w.Result().StatusCode())
	var out struct {
		Tools []tool.Metadata `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(w.Result().Body(), &out))
	require.Len(t, out.Tools, 2)
	assert.Equal(t, "Google_Search_Tool", out.Tools[0].Name)
	assert.Equal(t, "Web_Agent_Tool", out.Tools[1].Name)
}

func TestMetrics(t *testing.T) {
	s := newTestServer(NewHandler(nil, nil, nil, nil))
	w := ut.PerformRequest(s.Engine, "GET", "/metrics", body(""))
	assert.Equal(t, 200, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Header.ContentType()), "text/plain")
}

func TestSolve_ClampsBudgetToLimits(t *testing.T) {
	solver := &fakeSolver{}
	h := NewHandler(solver, nil, nil, nil)
	h.SetLimits(Limits{MaxSteps: 10, MaxTime: 5 * time.Minute})
	s := newTestServer(h)

	for _, b := range []string{
		`{"query":"q","max_steps":1000000,"max_time":1e9}`,
		`{"query":"q","max_steps":4,"max_time":30}`,
		`{"query":"q"}`,
	} {
		w := ut.PerformRequest(s.Engine, "POST", "/api/solve", body(b), ut.Header{Key: "Content-Type", Value: "application/json"})
		require.Equal(t, 200, w.Result().StatusCode(), b)
	}
	require.Len(t, solver.calls, 3)
	assert.Equal(t, 10, solver.calls[0].MaxSteps)
	assert.Equal(t, 5*time.Minute, solver.calls[0].MaxTime)
	assert.Equal(t, 4, solver.calls[1].MaxSteps)
	assert.Equal(t, 30*time.Second, solver.calls[1].MaxTime)
	assert.Equal(t, 0, solver.calls[2].MaxSteps)
	assert.Equal(t, time.Duration(0), solver.calls[2].MaxTime)
}

func TestSolve_RejectsUnsafePID(t *testing.T) {
	solver := &fakeSolver{}
	s := newTestServer(NewHandler(solver, nil, nil, nil))
	for _, pid := range []string{"../../../x", "a/b", "x y"} {
		b, _ := json.Marshal(map[string]string{"pid": pid, "query": "q"})
		w := ut.PerformRequest(s.Engine, "POST", "/api/solve", body(string(b)), ut.Header{Key: "Content-Type", Value: "application/json"})
		assert.Equal(t, 400, w.Result().StatusCode(), pid)
	}
	assert.Empty(t, solver.calls)
}

func TestSolve_ImagePathsStayUnderRoot(t *testing.T) {
	root := t.TempDir()
	imgDir := filepath.Join(root, "images")
	require.NoError(t, os.MkdirAll(imgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(imgDir, "0.png"), []byte("png"), 0o644))
	secret := filepath.Join(root, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("key"), 0o600))
	require.NoError(t, os.Symlink(secret, filepath.Join(imgDir, "link.png")))

	post := func(s *server.Hertz, image string) int {
		b, _ := json.Marshal(map[string]string{"query": "q", "image": image})
		w := ut.PerformRequest(s.Engine, "POST", "/api/solve", body(string(b)), ut.Header{Key: "Content-Type", Value: "application/json"})
		return w.Result().StatusCode()
	}

	// 未配置 image_root 时一律拒绝
	noRoot := &fakeSolver{}
	assert.Equal(t, 400, post(newTestServer(NewHandler(noRoot, nil, nil, nil)), filepath.Join(imgDir, "0.png")))
	assert.Empty(t, noRoot.calls)

	solver := &fakeSolver{}
	h := NewHandler(solver, nil, nil, nil)
	h.SetLimits(Limits{ImageRoot: imgDir})
	s := newTestServer(h)
	for _, bad := range []string{"../secret.txt", secret, "/etc/passwd", "link.png", "missing.png"} {
		assert.Equal(t, 400, post(s, bad), bad)
	}
	assert.Empty(t, solver.calls)

	require.Equal(t, 200, post(s, "0.png"))
	require.Len(t, solver.calls, 1)
	resolvedRoot, err := filepath.EvalSymlinks(imgDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(resolvedRoot, "0.png"), solver.calls[0].ImagePath)
}
