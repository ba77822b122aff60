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

package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema agent_runs 表结构；NewPostgresStore 启动时执行
const Schema = `
CREATE TABLE IF NOT EXISTS agent_runs (
    id          TEXT PRIMARY KEY,
    pid         TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL,
    record      JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS agent_runs_pid_idx ON agent_runs (pid, created_at DESC);
CREATE INDEX IF NOT EXISTS agent_runs_status_idx ON agent_runs (status, created_at);
`

// pgStore PostgreSQL 实现：完整记录以 JSONB 保存，pid 与 status 单独成列用于查询
type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore 创建基于 PostgreSQL 的存储；dsn 为连接串
func NewPostgresStore(ctx context.Context, dsn string) (Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, err
	}
	return &pgStore{pool: pool}, nil
}

// Close 关闭连接池
func (s *pgStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *pgStore) Create(ctx context.Context, run *Run) error {
	touch(run, true)
	record, err := json.Marshal(run)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO agent_runs (id, pid, status, record, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.Request.PID, string(run.Status), record, run.CreatedAt, run.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrRunExists
	}
	return err
}

func (s *pgStore) Update(ctx context.Context, run *Run) error {
	var created time.Time
	err := s.pool.QueryRow(ctx, `SELECT created_at FROM agent_runs WHERE id = $1`, run.ID).Scan(&created)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrRunNotFound
	}
	if err != nil {
		return err
	}
	run.CreatedAt = created
	touch(run, false)
	record, err := json.Marshal(run)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_runs SET pid = $2, status = $3, record = $4, updated_at = $5 WHERE id = $1`,
		run.ID, run.Request.PID, string(run.Status), record, run.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *pgStore) Get(ctx context.Context, id string) (*Run, error) {
	return s.one(ctx, `SELECT record FROM agent_runs WHERE id = $1`, id)
}

func (s *pgStore) GetByPID(ctx context.Context, pid string) (*Run, error) {
	return s.one(ctx, `SELECT record FROM agent_runs WHERE pid = $1 ORDER BY created_at DESC LIMIT 1`, pid)
}

func (s *pgStore) one(ctx context.Context, query string, arg string) (*Run, error) {
	var record []byte
	err := s.pool.QueryRow(ctx, query, arg).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	var r Run
	if err := json.Unmarshal(record, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *pgStore) List(ctx context.Context, filter Filter) ([]*Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM agent_runs WHERE ($1 = '' OR status = $1) ORDER BY created_at LIMIT NULLIF($2, -1)`,
		string(filter.Status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Run
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		var r Run
		if err := json.Unmarshal(record, &r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
