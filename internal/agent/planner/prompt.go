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

package planner

import (
	"fmt"
)

// decideContext DECIDE 提示词需要的上下文
type decideContext struct {
	Query        string
	Image        string
	Analysis     string
	Tools        []string
	ToolMetadata string
	Memory       string
	Step         int
	MaxSteps     int
}

func (c decideContext) remaining() int { return c.MaxSteps - c.Step }

func analysisPrompt(query, image string, tools []string, metadata string) string {
	return fmt.Sprintf(analysisTemplate, tools, metadata, image, query)
}

// toolCallMessages tool_call 变体：上下文放在系统提示，用户消息只有问题
func toolCallMessages(c decideContext) (system, user string) {
	system = fmt.Sprintf(toolCallSystemTemplate, c.Query, c.Image, c.Analysis, c.Tools, c.ToolMetadata, c.Memory, c.Step, c.MaxSteps, c.remaining())
	return system, c.Query
}

// subgoalMessages subgoal 变体：上下文放在用户提示
func subgoalMessages(c decideContext) (system, user string) {
	user = fmt.Sprintf(subgoalUserTemplate, c.Query, c.Image, c.Analysis, c.Tools, c.ToolMetadata, c.Memory, c.Step, c.MaxSteps, c.remaining())
	return subgoalSystemPrompt, user
}

func commandPrompt(query, image, context, subGoal, toolName, metadata string) string {
	return fmt.Sprintf(commandTemplate, query, image, context, subGoal, toolName, metadata, toolName)
}

func finalPrompt(query, image, actions string) string {
	return fmt.Sprintf(finalTemplate, query, image, actions)
}

func directPrompt(query, image, analysis, actions string) string {
	return fmt.Sprintf(directTemplate, query, image, analysis, actions)
}

const analysisTemplate = `
Task: Analyze the given query with accompanying inputs and determine the skills and tools needed to address it effectively.

Available tools: %v

Metadata for the tools: %s

Image: %s

Query: %s

Instructions:
1. Carefully read and understand the query and any accompanying inputs.
2. Identify the main objectives or tasks within the query.
3. List the specific skills that would be necessary to address the query comprehensively.
4. Examine the available tools in the toolbox and determine which ones might be relevant and useful for addressing the query. Consider the user metadata for each tool, including limitations and potential applications.
5. Provide a brief explanation for each skill and tool you've identified, describing how it would contribute to answering the query.

Please present your analysis in a clear, structured format.
`

const toolCallSystemTemplate = `
You are an expert in composing functions. You are given a question, query analysis, a set of possible functions and previous steps taken. Based on the question, you should determine the optimal next step and make only one function/tool call to achieve the purpose based on the provided context. If none of the functions can be used, point it out. If the given question lacks the parameters required by the function, also point it out. You should only return the function call in tool call sections.

Context:
Query: %s
Image: %s
Query Analysis: %s

Available Tools:
%v

Tool Metadata:
%s

Previous Steps and Their Results:
%s

Current Step: %d in %d steps
Remaining Steps: %d

In each action step, you MUST:
1. think about the reasoning process and enclose your reasoning within <think> </think> tags.
2. then return a json object with the function name and arguments within <tool_call></tool_call> tags, i.e. <tool_call>{"name": <function-name>, "arguments": <args-json-object>}</tool_call>
3. complete 1 and 2 in one single reply.

A complete reply example (do not copy, use only as reference):

<think>To address the query, I need to look up the latest specifications first.</think> <tool_call>{"name": "Web_Agent_Tool", "arguments": {"prompt": "Latest MacBook Pro specifications"}}</tool_call>

Make sure the argument types are correct. If no function can be used in the current task, return an empty <tool_call></tool_call>.
`

const subgoalSystemPrompt = `You are a planning assistant. Determine the single optimal next step for the task, choosing exactly one tool from the toolbox.`

const subgoalUserTemplate = `
Task: Determine the optimal next step to address the given query based on the provided analysis, available tools, and previous steps taken.

Context:
Query: %s
Image: %s
Query Analysis: %s

Available Tools:
%v

Tool Metadata:
%s

Previous Steps and Their Results:
%s

Current Step: %d in %d steps
Remaining Steps: %d

Instructions:
1. Analyze the context thoroughly, including the query, its analysis, any image, available tools and their metadata, and previous steps taken.
2. Determine the most appropriate next step by considering the key objectives of the query, the capabilities of each tool, and the logical progression of problem-solving.
3. Select ONE tool best suited for the next step.

Response Format:
Context: <all necessary information from previous steps, including tool outputs>
Sub-Goal: <the specific, achievable objective for this step>
Tool Name: <the exact name of the selected tool>

Do not include anything after the tool name.
`

const commandTemplate = `
Task: Generate a precise command to execute the selected tool.

Context:
Query: %s
Image: %s
Context: %s
Sub-Goal: %s
Selected Tool: %s
Tool Metadata: %s

Instructions:
1. Use the tool metadata to determine the required input names and types.
2. Fill in concrete argument values from the context and sub-goal. Use only literal values: strings, numbers, booleans, None, lists and dicts.
3. Return exactly one call of the selected tool wrapped in tool call tags, for example:
<tool_call>%s(query="concrete value")</tool_call>
`

const finalTemplate = `
Task: Generate the final output based on the query, image, and tools used in the process.

Context:
Query: %s
Image: %s
Actions Taken:
%s

Instructions:
1. Review the query, image, and all actions taken during the process.
2. Consider the results obtained from each tool execution.
3. Incorporate the relevant information from the memory to generate the step-by-step final output.
4. The final output should be consistent and coherent using the results from the tools.

Output Structure:
1. Summary
2. Detailed Analysis
3. Key Findings
4. Answer to the Query
5. Additional Insights (if applicable)
6. Conclusion
`

const directTemplate = `
Context:
Query: %s
Image: %s
Initial Analysis:
%s
Actions Taken:
%s

Please generate the concise output based on the query, image information, initial analysis, and actions taken. Break down the process into clear, logical, and coherent steps. Conclude with a precise and direct answer to the query.

Answer:
`
