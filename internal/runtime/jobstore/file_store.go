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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	filePrefix = "output_"
	fileSuffix = ".json"
)

// fileStore 每条记录一个 output_<key>.json 文件，key 为 PID（没有 PID 时为 run ID）。
// 同一 PID 的新记录覆盖旧文件，与批量求解重跑的语义一致。
// key 必须通过 ValidateKey，文件只会落在 dir 之内。
type fileStore struct {
	dir string
	mu  sync.RWMutex
	// byID run ID → key
	byID map[string]string
}

// NewFileStore 创建文件目录存储；目录不存在时创建，已有文件会被索引
func NewFileStore(dir string) (Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("jobstore: file store requires a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &fileStore{dir: dir, byID: make(map[string]string)}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		key, ok := keyOf(e.Name())
		if !ok || e.IsDir() {
			continue
		}
		r, err := s.read(key)
		if err != nil {
			continue
		}
		if r.ID == "" {
			r.ID = key
		}
		s.byID[r.ID] = key
	}
	return s, nil
}

// OutputPath 返回 key 对应的文件路径
func OutputPath(dir, key string) string {
	return filepath.Join(dir, filePrefix+key+fileSuffix)
}

func keyOf(name string) (string, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix), true
}

func (s *fileStore) read(key string) (*Run, error) {
	data, err := os.ReadFile(OutputPath(s.dir, key))
	if os.IsNotExist(err) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	var r Run
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("jobstore: decode %s: %w", key, err)
	}
	return &r, nil
}

func (s *fileStore) write(r *Run) error {
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return err
	}
	key := r.Key()
	if err := ValidateKey(key); err != nil {
		return err
	}
	path := OutputPath(s.dir, key)
	tmp, err := os.CreateTemp(s.dir, ".tmp-"+filePrefix+"*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *fileStore) Create(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[run.ID]; ok {
		return ErrRunExists
	}
	touch(run, true)
	if err := s.write(run); err != nil {
		return err
	}
	// 被覆盖的旧记录不再可按 ID 访问
	key := run.Key()
	for id, k := range s.byID {
		if k == key {
			delete(s.byID, id)
		}
	}
	s.byID[run.ID] = key
	return nil
}

func (s *fileStore) Update(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[run.ID]
	if !ok {
		return ErrRunNotFound
	}
	old, err := s.read(key)
	if err != nil {
		return err
	}
	run.CreatedAt = old.CreatedAt
	touch(run, false)
	return s.write(run)
}

func (s *fileStore) Get(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byID[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return s.read(key)
}

func (s *fileStore) GetByPID(ctx context.Context, pid string) (*Run, error) {
	if ValidateKey(pid) != nil {
		return nil, ErrRunNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(pid)
}

func (s *fileStore) List(ctx context.Context, filter Filter) ([]*Run, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.byID))
	for _, k := range s.byID {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	var runs []*Run
	for _, k := range keys {
		r, err := s.read(k)
		if err != nil {
			return nil, err
		}
		if filter.match(r) {
			runs = append(runs, r)
		}
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].CreatedAt.Before(runs[j].CreatedAt) })
	if filter.Limit > 0 && len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}
	return runs, nil
}

func (s *fileStore) Close() error { return nil }
