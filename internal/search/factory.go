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

package search

import (
	"time"

	"agent-platform/internal/storage/cache"
	"agent-platform/pkg/config"
	perrors "agent-platform/pkg/errors"
	"agent-platform/pkg/log"
	"agent-platform/pkg/retry"
)

// NewFromConfig 按 search.provider 构造带缓存的默认后端。
// 只构造被选中的后端，未选中后端缺少凭证不会报错。
func NewFromConfig(cfg config.SearchConfig, policy retry.Policy, timeout time.Duration, store cache.Store, logger *log.Logger) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "", "google":
		p, err = NewGoogle(GoogleOptions{APIKey: cfg.Google.APIKey, CX: cfg.Google.CX, BaseURL: cfg.Google.BaseURL, Retry: policy, Timeout: timeout})
	case "brave":
		p, err = NewBrave(BraveOptions{APIKey: cfg.Brave.APIKey, BaseURL: cfg.Brave.BaseURL, Retry: policy, Timeout: timeout})
	default:
		return nil, &perrors.ConfigurationError{Key: "search.provider", Reason: "unsupported provider " + cfg.Provider}
	}
	if err != nil {
		return nil, err
	}
	m := NewManager(p.Name())
	m.Register(NewCached(p, store, cfg.Cache.TTL, logger))
	return m, nil
}
