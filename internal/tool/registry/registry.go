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

package registry

import (
	"encoding/json"
	"sync"

	"agent-platform/internal/tool"
)

// Registry 工具注册表。保持注册顺序：模糊匹配工具名时按该顺序取第一个命中项。
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]tool.Tool
}

// New 创建新的 ToolRegistry
func New() *Registry {
	return &Registry{
		tools: make(map[string]tool.Tool),
	}
}

// Register 注册工具；同名工具原位替换，不改变顺序
func (r *Registry) Register(t tool.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get 按名称获取工具
func (r *Registry) Get(name string) (tool.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names 按注册顺序返回工具名
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// List 按注册顺序返回所有工具
func (r *Registry) List() []tool.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]tool.Tool, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.tools[name])
	}
	return list
}

// Len 已注册工具数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Metadata 按注册顺序返回全部工具元数据
func (r *Registry) Metadata() []tool.Metadata {
	list := r.List()
	out := make([]tool.Metadata, 0, len(list))
	for _, t := range list {
		out = append(out, t.Metadata())
	}
	return out
}

// MetadataForLLM 返回供规划模型阅读的工具元数据 JSON
func (r *Registry) MetadataForLLM() (string, error) {
	raw, err := json.MarshalIndent(r.Metadata(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Filter 返回只含 names 中工具的新注册表，顺序沿用原注册顺序；names 为空时返回全部
func (r *Registry) Filter(names []string) *Registry {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := New()
	for _, t := range r.List() {
		if len(names) == 0 || want[t.Name()] {
			out.Register(t)
		}
	}
	return out
}
