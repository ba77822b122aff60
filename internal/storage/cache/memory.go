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

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryStore 进程内缓存
type MemoryStore struct {
	items map[string]*cacheItem
	mu    sync.RWMutex
	now   func() time.Time
}

type cacheItem struct {
	value     []byte
	expiresAt time.Time
}

func (i *cacheItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

// NewMemoryStore 创建新的内存缓存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*cacheItem),
		now:   time.Now,
	}
}

// Set 设置缓存
func (s *MemoryStore) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	item := &cacheItem{value: data}
	if expiration > 0 {
		item.expiresAt = s.now().Add(expiration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = item
	return nil
}

// Get 获取缓存；过期项在读取时惰性删除
func (s *MemoryStore) Get(ctx context.Context, key string, dest any) error {
	s.mu.RLock()
	item, exists := s.items[key]
	s.mu.RUnlock()
	if !exists {
		return ErrMiss
	}
	if item.expired(s.now()) {
		s.mu.Lock()
		if cur, ok := s.items[key]; ok && cur == item {
			delete(s.items, key)
		}
		s.mu.Unlock()
		return ErrMiss
	}
	if err := json.Unmarshal(item.value, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// Delete 删除缓存
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// Exists 检查缓存是否存在
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, exists := s.items[key]
	return exists && !item.expired(s.now()), nil
}

// Len 当前条目数（含未清理的过期项）
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Clear 清除所有缓存
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*cacheItem)
	return nil
}

// Close 关闭缓存连接
func (s *MemoryStore) Close() error {
	return nil
}
