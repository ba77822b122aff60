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

package redaction

import "strings"

// Mode 脱敏模式
type Mode string

const (
	ModeMask   Mode = "mask"   // 保留首尾各 4 个字符，中间替换为 ****
	ModeHash   Mode = "hash"   // 替换为 SHA256 摘要
	ModeRemove Mode = "remove" // 移除字段
)

// Rule 按键名子串匹配的脱敏规则，匹配不区分大小写
type Rule struct {
	KeyContains string
	Mode        Mode
	Salt        string
}

// Policy 脱敏策略；规则按顺序匹配，第一条命中的生效
type Policy struct {
	Rules []Rule
}

// Match 返回匹配 key 的第一条规则
func (p *Policy) Match(key string) (Rule, bool) {
	if p == nil {
		return Rule{}, false
	}
	k := strings.ToLower(key)
	for _, r := range p.Rules {
		if r.KeyContains != "" && strings.Contains(k, strings.ToLower(r.KeyContains)) {
			return r, true
		}
	}
	return Rule{}, false
}

// SecretPolicy 配置展示用的默认策略：凭据类字段一律掩码
func SecretPolicy() *Policy {
	keys := []string{"apikey", "api_key", "password", "token", "secret", "dsn"}
	p := &Policy{Rules: make([]Rule, 0, len(keys))}
	for _, k := range keys {
		p.Rules = append(p.Rules, Rule{KeyContains: k, Mode: ModeMask})
	}
	return p
}
