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
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"agent-platform/internal/tool"
	"agent-platform/pkg/retry"
)

// URLExtractorToolName 网页正文抽取工具名
const URLExtractorToolName = "URL_Text_Extractor_Tool"

// DefaultMaxChars 抽取文本默认上限（字符）
const DefaultMaxChars = 100000

// 不含正文的元素
var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Head:     true,
}

// URLExtractorTool 下载网页并抽取可读文本
type URLExtractorTool struct {
	client   *resty.Client
	maxChars int
}

// NewURLExtractorTool 创建 URL_Text_Extractor_Tool；client 为 nil 时使用默认重试策略
func NewURLExtractorTool(client *resty.Client, maxChars int) *URLExtractorTool {
	if client == nil {
		client = retry.NewClient(retry.DefaultPolicy(), 0)
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &URLExtractorTool{client: client, maxChars: maxChars}
}

// Name 实现 tool.Tool
func (t *URLExtractorTool) Name() string { return URLExtractorToolName }

// Metadata 实现 tool.Tool
func (t *URLExtractorTool) Metadata() tool.Metadata {
	return tool.Metadata{
		Name:        URLExtractorToolName,
		Description: "A tool that extracts all text from a given URL.",
		Version:     "1.0.0",
		InputTypes:  map[string]string{"url": "str - The URL from which to extract text."},
		OutputType:  "dict - A dictionary containing the extracted text and any error messages.",
		DemoCommands: []tool.DemoCommand{
			{Command: `execution = tool.execute(url="https://example.com")`, Description: "Extract all text from the example.com website."},
		},
	}
}

type extraction struct {
	URL           string `json:"url"`
	ExtractedText string `json:"extracted_text"`
}

// Execute 实现 tool.Tool
func (t *URLExtractorTool) Execute(ctx context.Context, input map[string]any) (tool.ToolResult, error) {
	rawURL := strings.TrimSpace(tool.StringArg(input, "url"))
	if rawURL == "" {
		return tool.ToolResult{Err: "url is required"}, nil
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; agent-platform)").
		SetHeader("Accept", "text/html,application/xhtml+xml,text/plain;q=0.8,*/*;q=0.7").
		Get(rawURL)
	if err != nil {
		return tool.ToolResult{Err: fmt.Sprintf("Error extracting text from URL: %v", err)}, nil
	}
	if resp.IsError() {
		return tool.ToolResult{Err: fmt.Sprintf("Error extracting text from URL: status %d", resp.StatusCode())}, nil
	}

	text := resp.String()
	if ct := resp.Header().Get("Content-Type"); ct == "" || strings.Contains(ct, "html") {
		text = ExtractText(text)
	}
	raw, err := json.Marshal(extraction{URL: rawURL, ExtractedText: truncateChars(text, t.maxChars)})
	if err != nil {
		return tool.ToolResult{}, err
	}
	return tool.ToolResult{Content: string(raw)}, nil
}

// ExtractText 解析 HTML 并返回可见文本，块级元素之间换行
func ExtractText(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return strings.Join(strings.Fields(raw), " ")
	}
	var b strings.Builder
	walkText(doc, &b)
	return cleanWhitespace(b.String())
}

func walkText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode {
		if skipElements[n.DataAtom] {
			return
		}
		if isBlock(n.DataAtom) && b.Len() > 0 {
			b.WriteString("\n")
		}
	}
	if n.Type == html.TextNode {
		if s := strings.TrimSpace(n.Data); s != "" {
			b.WriteString(s)
			b.WriteString(" ")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, b)
	}
	if n.Type == html.ElementNode && (n.DataAtom == atom.Br || n.DataAtom == atom.Li) {
		b.WriteString("\n")
	}
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Table, atom.Tr:
		return true
	}
	return false
}

func cleanWhitespace(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func truncateChars(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "... [truncated]"
}
