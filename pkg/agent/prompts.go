package agent

import (
	"strings"
	"time"
)

const systemPrompt = `你是一个乐于助人的聊天机器人。

你的职责是帮助用户管理待办事项列表，同时也是用户的贴心伙伴。

你拥有长期记忆，用来记录三类信息：
1. 用户画像（关于用户的基本信息）
2. 用户的待办事项列表
3. 用户对如何更新待办事项的偏好说明

当前的用户画像（可能为空）：
<user_profile>
{user_profile}
</user_profile>

当前的待办事项列表（可能为空）：
<todo>
{todo}
</todo>

当前用户对更新待办事项的偏好（可能为空）：
<instructions>
{instructions}
</instructions>

处理原则：

1. 仔细理解用户的消息。

2. 判断是否需要更新长期记忆：
- 如果用户提供了个人信息，调用 UpdateMemory 工具，update_type 为 "user"
- 如果用户提到了任务，调用 UpdateMemory 工具，update_type 为 "todo"
- 如果用户说明了希望如何更新待办事项，调用 UpdateMemory 工具，update_type 为 "instructions"

3. 更新待办事项后告诉用户你做了什么；更新用户画像或偏好时不需要告知。

4. 信息不明确时优先更新待办事项，不要向用户确认。

5. 每次新增或修改任务时，在 planned_edits 中用中文写出这次修改的原因，
例如：用户要为宝宝报名游泳课，可以补充具体的游泳学校（如 La Petite Baleen 游泳学校）和可选的上课时间。

6. 保存完记忆或确认无需保存后，自然地回复用户。`

const chineseOnlyPrompt = "你是一个中文助手，请始终用简体中文回答。"

const extractPrompt = `请你回顾以下对话。

使用提供的工具来记录用户的必要信息。

使用并行工具调用（parallel tool calling），同时处理更新和插入操作。

系统时间：{time}`

const instructionsPrompt = `请你回顾以下对话。

基于该对话，更新你关于如何管理待办事项的规则。

如果用户提供了反馈，请根据反馈调整你添加或修改任务的方式。

你当前的偏好说明如下：

<current_instructions>
{current_instructions}
</current_instructions>`

const instructionsFollowUp = "请根据对话更新 instructions（用户偏好），只需要返回新增的部分。"

const hintsPrefix = "本次更新的提示："

func buildSystemPrompt(m Memory) string {
	return strings.NewReplacer(
		"{user_profile}", m.Profile,
		"{todo}", m.Todos,
		"{instructions}", m.Instructions,
	).Replace(systemPrompt)
}

func buildExtractPrompt(now time.Time, hints string) string {
	p := strings.Replace(extractPrompt, "{time}", now.Format(time.RFC3339), 1)
	if hints = strings.TrimSpace(hints); hints != "" {
		p += "\n\n" + hintsPrefix + hints
	}
	return p
}

func buildInstructionsPrompt(current string) string {
	return strings.Replace(instructionsPrompt, "{current_instructions}", current, 1)
}
