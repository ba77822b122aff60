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

package verify

import "fmt"

// Prompt 构造验证提示词
func Prompt(in Input) string {
	actions := "No actions have been taken yet."
	if in.Memory != nil {
		actions = in.Memory.Actions()
	}
	return fmt.Sprintf(promptTemplate, in.Query, in.ImageInfo, in.Tools, in.ToolMetadata, in.Analysis, actions)
}

const promptTemplate = `
Task: Thoroughly evaluate the completeness and accuracy of the memory for fulfilling the given query, considering the potential need for additional tool usage.

Context:
Query: %s
Image: %s
Available Tools: %v
Toolbox Metadata: %s
Initial Analysis: %s
Memory (tools used and results): %s

Detailed Instructions:
1. Carefully analyze the query, initial analysis, and image (if provided):
   - Identify the main objectives of the query.
   - Note any specific requirements or constraints mentioned.
   - If an image is provided, consider its relevance and what information it contributes.

2. Review the available tools and their metadata:
   - Understand the capabilities and limitations and best practices of each tool.
   - Consider how each tool might be applicable to the query.

3. Examine the memory content in detail:
   - Review each tool used and its execution results.
   - Assess how well each tool's output contributes to answering the query.

4. Critical Evaluation (address each point explicitly):
   a) Completeness: Does the memory fully address all aspects of the query?
   b) Unused Tools: Are there any unused tools that could provide additional relevant information?
   c) Inconsistencies: Are there any contradictions or conflicts in the information provided?
   d) Verification Needs: Is there any information that requires further verification due to tool limitations?
   e) Ambiguities: Are there any unclear or ambiguous results that could be clarified by using another tool?

5. Final Determination:
   Based on your thorough analysis, decide if the memory is complete and accurate enough to generate the final output, or if additional tool usage is necessary.

Response Format:

If the memory is complete, accurate, AND verified:
Explanation:
<Explain why the memory is sufficient, referencing specific information from the memory.>

Conclusion: STOP

If the memory is incomplete, insufficient, or requires further verification:
Explanation:
<Explain which information is missing and which tools could provide it.>

Conclusion: CONTINUE

IMPORTANT: Your response MUST end with either 'Conclusion: STOP' or 'Conclusion: CONTINUE' and nothing else.
`
