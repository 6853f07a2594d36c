// internal/models/stage.go
package models

// Stage 写作流程中的一个界面步骤
type Stage string

const (
	StageLogin     Stage = "login"
	StageWelcome   Stage = "welcome"
	StageCharacter Stage = "character"
	StagePlot      Stage = "plot"
	StageStructure Stage = "structure"
	StageWriting   Stage = "writing"
	StageReview    Stage = "review"
	StageDashboard Stage = "dashboard"
)

// AllStages 全部阶段
var AllStages = []Stage{
	StageLogin,
	StageWelcome,
	StageCharacter,
	StagePlot,
	StageStructure,
	StageWriting,
	StageReview,
	StageDashboard,
}

// Valid 检查阶段是否属于已知枚举
func (s Stage) Valid() bool {
	for _, stage := range AllStages {
		if s == stage {
			return true
		}
	}
	return false
}

// IsContent 内容阶段区分 AI 与非 AI 两种组件
func (s Stage) IsContent() bool {
	switch s {
	case StageCharacter, StagePlot, StageStructure, StageWriting:
		return true
	default:
		return false
	}
}
