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

package builtin

import (
	"context"

	"agent-platform/internal/search"
	"agent-platform/internal/tool"
)

// GoogleSearchToolName 搜索工具名
const GoogleSearchToolName = "Google_Search_Tool"

// GoogleSearchTool 直接返回搜索结果列表（JSON）
type GoogleSearchTool struct {
	provider   search.Provider
	numResults int
}

// NewGoogleSearchTool 创建 Google_Search_Tool；numResults 为默认返回条数
func NewGoogleSearchTool(provider search.Provider, numResults int) *GoogleSearchTool {
	if numResults <= 0 {
		numResults = search.DefaultNumResults
	}
	return &GoogleSearchTool{provider: provider, numResults: numResults}
}

// Name 实现 tool.Tool
func (t *GoogleSearchTool) Name() string { return GoogleSearchToolName }

// Metadata 实现 tool.Tool
func (t *GoogleSearchTool) Metadata() tool.Metadata {
	return tool.Metadata{
		Name:        GoogleSearchToolName,
		Description: "A tool that performs Google searches based on a given text query.",
		Version:     "1.0.0",
		InputTypes: map[string]string{
			"query":       "str - The search query to be used for the Google search.",
			"num_results": "int - The number of search results to return (default: 10).",
		},
		OutputType: "list - A list of dictionaries containing search result information.",
		DemoCommands: []tool.DemoCommand{
			{Command: `execution = tool.execute(query="Python programming")`, Description: "Perform a Google search for 'Python programming' and return the default number of results."},
			{Command: `execution = tool.execute(query="Machine learning tutorials", num_results=5)`, Description: "Perform a Google search for 'Machine learning tutorials' and return 5 results."},
		},
	}
}

// Execute 实现 tool.Tool。搜索失败与无结果都以 error 条目写入结果列表，与模型看到的格式一致。
func (t *GoogleSearchTool) Execute(ctx context.Context, input map[string]any) (tool.ToolResult, error) {
	query := tool.StringArg(input, "query")
	if query == "" {
		return tool.ToolResult{Err: "query is required"}, nil
	}
	results, err := t.provider.Search(ctx, query, tool.IntArg(input, "num_results", t.numResults))
	return tool.ToolResult{Content: search.Format(results, err)}, nil
}
