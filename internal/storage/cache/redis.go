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
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix Redis 键前缀，Clear 只删除带该前缀的键
const DefaultKeyPrefix = "agent-platform:cache:"

// RedisStore 基于 go-redis 的共享缓存，多个 worker 进程可复用搜索结果
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore 使用已有客户端创建存储；prefix 为空时使用 DefaultKeyPrefix
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// DialRedis 连接 Redis 并 Ping 校验
func DialRedis(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(client, ""), nil
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

// Set 设置缓存
func (s *RedisStore) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return s.client.Set(ctx, s.key(key), data, expiration).Err()
}

// Get 获取缓存
func (s *RedisStore) Get(ctx context.Context, key string, dest any) error {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("redis get: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// Delete 删除缓存
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// Exists 检查缓存是否存在
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Clear 按前缀 SCAN 后删除，不执行 FLUSHDB
func (s *RedisStore) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 200).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close 关闭缓存连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}
