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

package websearch

const instruction = `Answer the given question. ` +
	`You must conduct reasoning inside <think> and </think> first every time you get new information. ` +
	`After reasoning, if you find you lack some knowledge, you can call a search engine by <search> query </search> ` +
	`and it will return the top searched results between <information> and </information>. ` +
	`You can search as many times as you want. ` +
	`Once you have enough information, you must include the final answer together with a concise explanation of why this answer is correct, ` +
	`both inside the <answer> and </answer> tags. The explanation should summarize the key reasoning steps that led to the answer. ` +
	`For example: <answer>
Paris is the capital of France. The French constitution designates Paris as the seat of government, so the answer is Paris.
</answer> Question:`
