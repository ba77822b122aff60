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

// Package cache 搜索结果等远程调用结果的键值缓存，值以 JSON 存储
package cache

import (
	"context"
	"fmt"
	"time"

	perrors "agent-platform/pkg/errors"
)

// Store 缓存存储接口
type Store interface {
	// Set 设置缓存，expiration 为 0 表示不过期
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	// Get 获取缓存并反序列化到 dest；未命中或已过期时返回的错误满足 IsMiss
	Get(ctx context.Context, key string, dest any) error
	// Delete 删除缓存，不存在时不报错
	Delete(ctx context.Context, key string) error
	// Exists 检查缓存是否存在
	Exists(ctx context.Context, key string) (bool, error)
	// Clear 清除本存储写入的所有缓存
	Clear(ctx context.Context) error
	// Close 关闭缓存连接
	Close() error
}

// ErrMiss 缓存未命中
var ErrMiss = fmt.Errorf("cache miss: %w", perrors.ErrNotFound)

// IsMiss 判断错误是否为未命中
func IsMiss(err error) bool {
	return perrors.Is(err, ErrMiss)
}
