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
	"context"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	perrors "agent-platform/pkg/errors"
	"agent-platform/pkg/retry"
)

const braveBaseURL = "https://api.search.brave.com/res/v1/web/search"

// Brave Brave Search API
type Brave struct {
	apiKey  string
	baseURL string
	client  *resty.Client
}

// BraveOptions 构造参数
type BraveOptions struct {
	APIKey  string
	BaseURL string
	Retry   retry.Policy
	Timeout time.Duration
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// NewBrave 缺少 API key 时返回 ConfigurationError
func NewBrave(opts BraveOptions) (*Brave, error) {
	if opts.APIKey == "" {
		return nil, perrors.MissingConfig("search.brave.api_key")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = braveBaseURL
	}
	return &Brave{apiKey: opts.APIKey, baseURL: opts.BaseURL, client: retry.NewClient(opts.Retry, opts.Timeout)}, nil
}

// Name 实现 Provider
func (b *Brave) Name() string { return "brave" }

// Search 实现 Provider；Brave 单次最多返回 20 条
func (b *Brave) Search(ctx context.Context, query string, num int) ([]Result, error) {
	var out braveResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeader("X-Subscription-Token", b.apiKey).
		SetQueryParams(map[string]string{
			"q":     query,
			"count": strconv.Itoa(clampNum(num, 20)),
		}).
		SetResult(&out).
		Get(b.baseURL)
	if err := remoteError(b.Name(), resp, err); err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(out.Web.Results))
	for _, r := range out.Web.Results {
		results = append(results, Result{Title: r.Title, Link: r.URL, Snippet: r.Description})
	}
	return results, nil
}
