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

// Package redaction 在输出配置、运行记录前对敏感字段脱敏
package redaction

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Engine 脱敏引擎
type Engine struct {
	policy *Policy
}

// NewEngine 创建脱敏引擎；policy 为 nil 时不做任何处理
func NewEngine(policy *Policy) *Engine {
	return &Engine{policy: policy}
}

// Redact 将任意可 JSON 序列化的值转换为通用结构并应用脱敏规则
func (e *Engine) Redact(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	e.apply(obj)
	return obj, nil
}

// RedactJSON 对 JSON 对象字节应用脱敏规则
func (e *Engine) RedactJSON(data []byte) ([]byte, error) {
	if e.policy == nil || len(data) == 0 {
		return data, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return data, err
	}
	e.apply(obj)
	return json.Marshal(obj)
}

func (e *Engine) apply(obj map[string]any) {
	for k, v := range obj {
		switch x := v.(type) {
		case map[string]any:
			e.apply(x)
			continue
		case []any:
			for _, item := range x {
				if m, ok := item.(map[string]any); ok {
					e.apply(m)
				}
			}
			continue
		}
		rule, ok := e.policy.Match(k)
		if !ok {
			continue
		}
		if rule.Mode == ModeRemove {
			delete(obj, k)
			continue
		}
		// 数值、布尔字段（如 max_tokens）不视为凭据
		s, isStr := v.(string)
		if !isStr || s == "" {
			continue
		}
		if rule.Mode == ModeHash {
			obj[k] = hashValue(s, rule.Salt)
		} else {
			obj[k] = mask(s)
		}
	}
}

func mask(s string) string {
	if len(s) > 8 {
		return s[:4] + "****" + s[len(s)-4:]
	}
	return "****"
}

func hashValue(value, salt string) string {
	h := sha256.New()
	h.Write([]byte(value))
	if salt != "" {
		h.Write([]byte(salt))
	}
	return "hash:" + hex.EncodeToString(h.Sum(nil))
}
