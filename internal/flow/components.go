// internal/flow/components.go
package flow

import "github.com/Corphon/StoryWriter/internal/models"

// StageInput 组件渲染所需的状态切片
type StageInput struct {
	Character  *models.Character  `json:"character,omitempty"`
	Plot       *models.Plot       `json:"plot,omitempty"`
	StoryState *models.StoryState `json:"story_state,omitempty"`
}

// Component 阶段组件描述，AI 版与非 AI 版遵循同一份输入输出约定
type Component struct {
	Name       string       `json:"name"`
	Stage      models.Stage `json:"stage"`
	AIAssisted bool         `json:"ai_assisted"`
	Feature    string       `json:"feature,omitempty"` // AI 调用的审计标签

	input func(models.StoryState) StageInput
}

// Input 从故事状态中取出组件需要的切片
func (c Component) Input(state models.StoryState) StageInput {
	if c.input == nil {
		return StageInput{}
	}
	return c.input(state.Clone())
}

type componentKey struct {
	Stage     models.Stage
	AIEnabled bool
}

func noInput(models.StoryState) StageInput { return StageInput{} }

func characterInput(s models.StoryState) StageInput {
	return StageInput{Character: s.Character}
}

func plotInput(s models.StoryState) StageInput {
	return StageInput{Character: s.Character, Plot: s.Plot}
}

func fullInput(s models.StoryState) StageInput {
	return StageInput{StoryState: &s}
}

// components (阶段, 是否启用AI) -> 组件
var components = map[componentKey]Component{}

// register 内容阶段拆成 AI 版与 "-no-ai" 版，其余阶段两种开关共用一个组件
func register(stage models.Stage, name, feature string, input func(models.StoryState) StageInput) {
	if !stage.IsContent() {
		c := Component{Name: name, Stage: stage, input: input}
		components[componentKey{Stage: stage, AIEnabled: true}] = c
		components[componentKey{Stage: stage, AIEnabled: false}] = c
		return
	}
	components[componentKey{Stage: stage, AIEnabled: true}] = Component{
		Name: name, Stage: stage, AIAssisted: true, Feature: feature, input: input,
	}
	components[componentKey{Stage: stage, AIEnabled: false}] = Component{
		Name: name + "-no-ai", Stage: stage, input: input,
	}
}

func init() {
	register(models.StageLogin, "login-page", "", noInput)
	register(models.StageDashboard, "teacher-dashboard", "", noInput)
	register(models.StageWelcome, "welcome-page", "", noInput)
	register(models.StageReview, "story-review", "", fullInput)

	register(models.StageCharacter, "character-creation", "character", noInput)
	register(models.StagePlot, "plot-brainstorm", "plot", characterInput)
	register(models.StageStructure, "story-structure", "structure", plotInput)
	register(models.StageWriting, "guided-writing", "writing", fullInput)
}

// Dispatch 按 (阶段, AI 开关) 查找组件
func Dispatch(stage models.Stage, aiEnabled bool) (Component, bool) {
	c, ok := components[componentKey{Stage: stage, AIEnabled: aiEnabled}]
	return c, ok
}
