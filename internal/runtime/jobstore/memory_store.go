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
	"sync"
)

// memoryStore 内存实现，进程退出后丢失
type memoryStore struct {
	mu    sync.RWMutex
	runs  map[string]*Run
	order []string
}

// NewMemoryStore 创建内存版存储
func NewMemoryStore() Store {
	return &memoryStore{runs: make(map[string]*Run)}
}

func (s *memoryStore) Create(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return ErrRunExists
	}
	touch(run, true)
	s.runs[run.ID] = clone(run)
	s.order = append(s.order, run.ID)
	return nil
}

func (s *memoryStore) Update(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.runs[run.ID]
	if !ok {
		return ErrRunNotFound
	}
	run.CreatedAt = old.CreatedAt
	touch(run, false)
	s.runs[run.ID] = clone(run)
	return nil
}

func (s *memoryStore) Get(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return clone(r), nil
}

func (s *memoryStore) GetByPID(ctx context.Context, pid string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		if r := s.runs[s.order[i]]; r.Request.PID == pid {
			return clone(r), nil
		}
	}
	return nil, ErrRunNotFound
}

func (s *memoryStore) List(ctx context.Context, filter Filter) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Run
	for _, id := range s.order {
		r := s.runs[id]
		if !filter.match(r) {
			continue
		}
		out = append(out, clone(r))
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *memoryStore) Close() error { return nil }
