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
	"fmt"

	"agent-platform/pkg/config"
)

// NewCache 根据配置创建缓存；type 为 none 时返回 (nil, nil)，调用方据此跳过缓存
func NewCache(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	switch cfg.Type {
	case "none":
		return nil, nil
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return DialRedis(ctx, cfg.Addr, cfg.Password, cfg.DB)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
