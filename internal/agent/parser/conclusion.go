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

package parser

import (
	"regexp"
	"strings"
)

// Decision 验证结论
type Decision string

const (
	Stop     Decision = "STOP"
	Continue Decision = "CONTINUE"
)

// VerificationResult 验证分析文本与结论
type VerificationResult struct {
	Analysis string   `json:"analysis"`
	Decision Decision `json:"decision"`
}

// MemoryVerification 结构化输出的验证结果
type MemoryVerification struct {
	Analysis   string `json:"analysis"`
	StopSignal bool   `json:"stop_signal"`
}

var conclusionPattern = regexp.MustCompile(`(?is)conclusion\**:?\s*\**\s*(\w+)`)

// ExtractConclusion 把验证输出转换成 STOP/CONTINUE。
// 文本以最后一个 "Conclusion: <word>" 为准；没有有效标记时按全文是否出现 stop、continue 判断，都没有则 CONTINUE。
func ExtractConclusion(response any) VerificationResult {
	switch r := response.(type) {
	case *MemoryVerification:
		if r == nil {
			return VerificationResult{Decision: Continue}
		}
		return fromSignal(r.Analysis, r.StopSignal)
	case MemoryVerification:
		return fromSignal(r.Analysis, r.StopSignal)
	case string:
		return VerificationResult{Analysis: r, Decision: conclusionOf(r)}
	default:
		return VerificationResult{Decision: Continue}
	}
}

func fromSignal(analysis string, stop bool) VerificationResult {
	if stop {
		return VerificationResult{Analysis: analysis, Decision: Stop}
	}
	return VerificationResult{Analysis: analysis, Decision: Continue}
}

func conclusionOf(text string) Decision {
	if matches := conclusionPattern.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		switch Decision(strings.ToUpper(matches[len(matches)-1][1])) {
		case Stop:
			return Stop
		case Continue:
			return Continue
		}
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "stop") {
		return Stop
	}
	return Continue
}
