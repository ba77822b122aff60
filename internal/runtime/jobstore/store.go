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

// Package jobstore 求解会话记录（Run）的存储：内存、文件目录与 PostgreSQL 三种实现
package jobstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"agent-platform/internal/agent/planner"
	"agent-platform/pkg/config"
	perrors "agent-platform/pkg/errors"
)

var (
	// ErrRunNotFound 记录不存在
	ErrRunNotFound = fmt.Errorf("jobstore: run %w", perrors.ErrNotFound)
	// ErrRunExists Create 时 ID 已存在
	ErrRunExists = errors.New("jobstore: run already exists")
	// ErrInvalidKey PID 含有不允许出现在文件名中的字符
	ErrInvalidKey = errors.New("jobstore: invalid key")
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateKey 校验 PID；PID 会直接成为文件名的一部分，只允许 [A-Za-z0-9._-]
func ValidateKey(key string) error {
	if len(key) > 128 || !keyPattern.MatchString(key) || key == "." || key == ".." {
		return fmt.Errorf("%w %q: only letters, digits, '.', '_' and '-' are allowed", ErrInvalidKey, key)
	}
	return nil
}

// Status 会话状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal 是否为终止状态
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Run 一次求解的记录。Result 内嵌展开，序列化后与批量输出文件字段一致
// （pid、query、final_output、memory、step_count、execution_time 等）。
type Run struct {
	ID        string        `json:"run_id"`
	Status    Status        `json:"status"`
	Request   planner.Query `json:"request"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	*planner.Result
}

// Key 记录的业务键：有 PID 时为 PID，否则为 ID
func (r *Run) Key() string {
	if r.Request.PID != "" {
		return r.Request.PID
	}
	return r.ID
}

// Filter List 的过滤条件；零值表示全部
type Filter struct {
	Status Status
	Limit  int
}

func (f Filter) match(r *Run) bool {
	return f.Status == "" || r.Status == f.Status
}

// Store 会话记录存储
type Store interface {
	// Create 保存新记录；ID 已存在时返回 ErrRunExists
	Create(ctx context.Context, run *Run) error
	// Update 覆盖已有记录；不存在时返回 ErrRunNotFound
	Update(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	// GetByPID 返回该 PID 最近创建的记录
	GetByPID(ctx context.Context, pid string) (*Run, error)
	// List 按创建时间先后返回
	List(ctx context.Context, filter Filter) ([]*Run, error)
	Close() error
}

// New 按配置创建存储
func New(ctx context.Context, cfg config.JobStoreConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(cfg.Dir)
	case "postgres":
		return NewPostgresStore(ctx, cfg.DSN)
	default:
		return nil, &perrors.ConfigurationError{Key: "jobstore.type", Reason: fmt.Sprintf("unsupported value %q", cfg.Type)}
	}
}

// clone 深拷贝，调用方修改返回值不会影响存储
func clone(r *Run) *Run {
	if r == nil {
		return nil
	}
	c := *r
	if r.Result != nil {
		res := *r.Result
		res.Memory = append(res.Memory[:0:0], r.Result.Memory...)
		res.Errors = append(res.Errors[:0:0], r.Result.Errors...)
		c.Result = &res
	}
	return &c
}

func touch(r *Run, created bool) {
	now := time.Now().UTC()
	if created && r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
}
