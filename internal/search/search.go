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

// Package search 网页搜索后端：Provider 接口、Google/Brave 实现与带缓存的包装
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	perrors "agent-platform/pkg/errors"
	"agent-platform/pkg/retry"
)

// DefaultNumResults 未指定数量时返回的结果数
const DefaultNumResults = 10

// Result 单条搜索结果
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Provider 搜索后端
type Provider interface {
	Name() string
	// Search 执行查询；远程失败在重试耗尽后返回 *errors.RemoteCallError，无结果时返回空切片
	Search(ctx context.Context, query string, num int) ([]Result, error)
}

// Manager 按名称持有多个后端，默认走 primary
type Manager struct {
	providers map[string]Provider
	primary   string
}

// NewManager 创建 Manager
func NewManager(primary string) *Manager {
	return &Manager{providers: make(map[string]Provider), primary: primary}
}

// Register 注册后端
func (m *Manager) Register(p Provider) {
	m.providers[p.Name()] = p
}

// Primary 返回默认后端
func (m *Manager) Primary() (Provider, error) {
	p, ok := m.providers[m.primary]
	if !ok {
		return nil, &perrors.ConfigurationError{Key: "search.provider", Reason: fmt.Sprintf("provider %q not configured", m.primary)}
	}
	return p, nil
}

// Name 实现 Provider，返回默认后端名
func (m *Manager) Name() string { return m.primary }

// Search 使用默认后端查询
func (m *Manager) Search(ctx context.Context, query string, num int) ([]Result, error) {
	p, err := m.Primary()
	if err != nil {
		return nil, err
	}
	return p.Search(ctx, query, num)
}

// Format 把结果渲染为模型可读的 JSON 数组；空结果或错误渲染为单个 error 项
func Format(results []Result, err error) string {
	var v any = results
	switch {
	case err != nil:
		v = []map[string]string{{"error": fmt.Sprintf("An error occurred: %v", err)}}
	case len(results) == 0:
		v = []map[string]string{{"error": "No results found."}}
	}
	raw, mErr := json.MarshalIndent(v, "", "  ")
	if mErr != nil {
		return fmt.Sprintf(`[{"error": %q}]`, mErr.Error())
	}
	return string(raw)
}

func clampNum(num, max int) int {
	if num <= 0 {
		num = DefaultNumResults
	}
	if max > 0 && num > max {
		num = max
	}
	return num
}

func remoteError(provider string, resp *resty.Response, err error) error {
	if err != nil {
		return &perrors.RemoteCallError{Op: "search", Provider: provider, Attempts: retry.Attempts(resp), Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		body := resp.String()
		if len(body) > 512 {
			body = body[:512] + "..."
		}
		return &perrors.RemoteCallError{
			Op:       "search",
			Provider: provider,
			Attempts: retry.Attempts(resp),
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode(), body),
		}
	}
	return nil
}
