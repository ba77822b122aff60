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

const googleBaseURL = "https://www.googleapis.com/customsearch/v1"

// Google Custom Search JSON API
type Google struct {
	apiKey  string
	cx      string
	baseURL string
	client  *resty.Client
}

// GoogleOptions 构造参数
type GoogleOptions struct {
	APIKey  string
	CX      string
	BaseURL string
	Retry   retry.Policy
	Timeout time.Duration
}

type googleResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// NewGoogle 缺少 API key 或 CX 时返回 ConfigurationError
func NewGoogle(opts GoogleOptions) (*Google, error) {
	if opts.APIKey == "" {
		return nil, perrors.MissingConfig("search.google.api_key")
	}
	if opts.CX == "" {
		return nil, perrors.MissingConfig("search.google.cx")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = googleBaseURL
	}
	return &Google{
		apiKey:  opts.APIKey,
		cx:      opts.CX,
		baseURL: opts.BaseURL,
		client:  retry.NewClient(opts.Retry, opts.Timeout),
	}, nil
}

// Name 实现 Provider
func (g *Google) Name() string { return "google" }

// Search 实现 Provider；Google 单次最多返回 10 条
func (g *Google) Search(ctx context.Context, query string, num int) ([]Result, error) {
	var out googleResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":   query,
			"key": g.apiKey,
			"cx":  g.cx,
			"num": strconv.Itoa(clampNum(num, 10)),
		}).
		SetResult(&out).
		Get(g.baseURL)
	if err := remoteError(g.Name(), resp, err); err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(out.Items))
	for _, it := range out.Items {
		results = append(results, Result{Title: it.Title, Link: it.Link, Snippet: it.Snippet})
	}
	return results, nil
}
