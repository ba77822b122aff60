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

package tool

import (
	"sort"
	"strconv"
	"strings"
)

// Arg 一个关键字参数，Value 只能是字面量
type Arg struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Call 从模型输出中解析出的工具调用；Args 保持模型给出的顺序
type Call struct {
	Name string `json:"name"`
	Args []Arg  `json:"arguments"`
}

// Map 返回参数的 map 视图，重复的参数名以后者为准
func (c *Call) Map() map[string]any {
	out := make(map[string]any, len(c.Args))
	for _, a := range c.Args {
		out[a.Name] = a.Value
	}
	return out
}

// Get 按名称读取参数
func (c *Call) Get(name string) (any, bool) {
	for i := len(c.Args) - 1; i >= 0; i-- {
		if c.Args[i].Name == name {
			return c.Args[i].Value, true
		}
	}
	return nil, false
}

// String 以 Name(k="v", n=1) 形式渲染，用于步骤记录与提示词
func (c *Call) String() string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('(')
	for i, a := range c.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.Name)
		b.WriteByte('=')
		writeLiteral(&b, a.Value)
	}
	b.WriteByte(')')
	return b.String()
}

func writeLiteral(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("None")
	case string:
		b.WriteString(strconv.Quote(x))
	case bool:
		if x {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case []any:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			writeLiteral(b, e)
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.Quote(k))
			b.WriteString(": ")
			writeLiteral(b, x[k])
		}
		b.WriteByte('}')
	default:
		b.WriteString(formatScalar(x))
	}
}
