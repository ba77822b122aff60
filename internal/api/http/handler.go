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
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"

	"agent-platform/internal/agent/planner"
	"agent-platform/internal/runtime/jobstore"
	"agent-platform/internal/tool/registry"
	"agent-platform/pkg/log"
	"agent-platform/pkg/metrics"
)

// Solver 单题求解，由 *planner.Planner 实现
type Solver interface {
	Run(ctx context.Context, q planner.Query) (*planner.Result, error)
}

// Handler HTTP 处理器
type Handler struct {
	solver Solver
	store  jobstore.Store
	tools  *registry.Registry
	logger *log.Logger
	limits Limits

	// 异步求解的后台任务，Shutdown 时等待
	inflight sync.WaitGroup
}

// NewHandler 创建新的 HTTP 处理器；store 为 nil 时使用内存存储
func NewHandler(solver Solver, store jobstore.Store, tools *registry.Registry, logger *log.Logger) *Handler {
	if store == nil {
		store = jobstore.NewMemoryStore()
	}
	if tools == nil {
		tools = registry.New()
	}
	return &Handler{solver: solver, store: store, tools: tools, logger: logger.Component("http")}
}

// Limits 单个请求可申请的资源上限
type Limits struct {
	// MaxSteps 请求的 max_steps 超过该值时截断，0 表示不限
	MaxSteps int
	MaxTime  time.Duration

	// ImageRoot 请求中的图片路径必须位于该目录之内；为空时拒绝带图片的请求
	ImageRoot string
}

// SetLimits 设置请求上限
func (h *Handler) SetLimits(l Limits) { h.limits = l }

// SolveRequest POST /api/solve 请求体
type SolveRequest struct {
	PID      string  `json:"pid"`
	Query    string  `json:"query"`
	Image    string  `json:"image"`
	MaxSteps int     `json:"max_steps"`
	MaxTime  float64 `json:"max_time"` // 秒
	Async    bool    `json:"async"`
}

func (r SolveRequest) query() planner.Query {
	return planner.Query{
		PID:       r.PID,
		Text:      r.Query,
		ImagePath: r.Image,
		MaxSteps:  r.MaxSteps,
		MaxTime:   time.Duration(r.MaxTime * float64(time.Second)),
	}
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"tools":     h.tools.Len(),
	})
}

// Solve 执行一次规划会话；async=true 时立即返回 202 与 run_id
// POST /api/solve
func (h *Handler) Solve(c context.Context, ctx *app.RequestContext) {
	var req SolveRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Query == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	if req.MaxSteps < 0 || req.MaxTime < 0 {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "max_steps and max_time must not be negative"})
		return
	}
	if h.solver == nil {
		ctx.JSON(consts.StatusServiceUnavailable, map[string]string{"error": "planner not configured"})
		return
	}

	if req.PID != "" {
		if err := jobstore.ValidateKey(req.PID); err != nil {
			ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid pid: " + err.Error()})
			return
		}
	}
	q := req.query()
	if q.ImagePath != "" {
		path, err := h.resolveImage(q.ImagePath)
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		q.ImagePath = path
	}
	h.clamp(&q)

	run := &jobstore.Run{ID: uuid.NewString(), Status: jobstore.StatusPending, Request: q}
	if err := h.store.Create(c, run); err != nil {
		hlog.CtxErrorf(c, "create run failed: %v", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": "create run: " + err.Error()})
		return
	}

	if req.Async {
		h.inflight.Add(1)
		go func() {
			defer h.inflight.Done()
			h.execute(context.WithoutCancel(c), run)
		}()
		ctx.JSON(consts.StatusAccepted, map[string]string{"run_id": run.ID, "status": string(jobstore.StatusPending)})
		return
	}

	h.execute(c, run)
	status := consts.StatusOK
	if run.Status == jobstore.StatusFailed {
		status = consts.StatusInternalServerError
	}
	ctx.JSON(status, run)
}

// clamp 把请求的预算截断到配置上限；0 沿用规划器默认值
func (h *Handler) clamp(q *planner.Query) {
	if l := h.limits.MaxSteps; l > 0 && q.MaxSteps > l {
		q.MaxSteps = l
	}
	if l := h.limits.MaxTime; l > 0 && q.MaxTime > l {
		q.MaxTime = l
	}
}

// resolveImage 将请求中的图片路径解析到 ImageRoot 之下，符号链接解析后仍须留在根目录内
func (h *Handler) resolveImage(image string) (string, error) {
	if h.limits.ImageRoot == "" {
		return "", errors.New("image paths are not accepted: api.image_root is not configured")
	}
	root, err := filepath.EvalSymlinks(h.limits.ImageRoot)
	if err != nil {
		return "", fmt.Errorf("image root: %w", err)
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("image root: %w", err)
	}
	path := image
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path, err = filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("image %q not found under image root", image)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("image %q is outside the image root", image)
	}
	return path, nil
}

// execute 运行会话并把结果写回存储；run 原地更新
func (h *Handler) execute(ctx context.Context, run *jobstore.Run) {
	run.Status = jobstore.StatusRunning
	if err := h.store.Update(ctx, run); err != nil {
		h.logger.Warn("mark run running failed", "run_id", run.ID, "error", err)
	}

	res, err := h.solver.Run(ctx, run.Request)
	if err != nil {
		run.Status, run.Error = jobstore.StatusFailed, err.Error()
		h.logger.Warn("solve failed", "run_id", run.ID, "error", err)
	} else {
		run.Status, run.Result = jobstore.StatusCompleted, res
	}
	if err := h.store.Update(context.WithoutCancel(ctx), run); err != nil {
		h.logger.Error("save run failed", "run_id", run.ID, "error", err)
	}
}

// GetRun 查询单次运行记录
// GET /api/runs/:id
func (h *Handler) GetRun(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	run, err := h.store.Get(c, id)
	if err != nil {
		if errors.Is(err, jobstore.ErrRunNotFound) {
			ctx.JSON(consts.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	ctx.JSON(consts.StatusOK, run)
}

// ListRuns 列出运行记录，支持 status 与 limit 查询参数
// GET /api/runs
func (h *Handler) ListRuns(c context.Context, ctx *app.RequestContext) {
	f := jobstore.Filter{Status: jobstore.Status(ctx.Query("status"))}
	if s := ctx.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		f.Limit = n
	}
	runs, err := h.store.List(c, f)
	if err != nil {
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"runs": runs, "total": len(runs)})
}

// ListTools 返回已注册工具的元数据
// GET /api/tools
func (h *Handler) ListTools(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]any{"tools": h.tools.Metadata()})
}

// Metrics Prometheus 文本格式指标
// GET /metrics
func (h *Handler) Metrics(c context.Context, ctx *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		ctx.String(consts.StatusInternalServerError, err.Error())
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

// Wait 等待全部异步会话结束
func (h *Handler) Wait() { h.inflight.Wait() }
