// internal/flow/event.go
package flow

import "github.com/Corphon/StoryWriter/internal/models"

// EventType 触发阶段变化的事件类型
type EventType string

const (
	EventLogin         EventType = "login"
	EventStart         EventType = "start"
	EventCharacterDone EventType = "character_done"
	EventPlotDone      EventType = "plot_done"
	EventStructureDone EventType = "structure_done"
	EventWritingDone   EventType = "writing_done"
	EventEdit          EventType = "edit"
	EventBack          EventType = "back"
	EventReset         EventType = "reset"
)

// Event 一次阶段事件，只有与类型对应的字段有意义
type Event struct {
	Type      EventType
	Identity  *models.Identity
	Character *models.Character
	Plot      *models.Plot
	Structure *models.Structure
	Story     string
	Target    models.Stage
}

// Login 认证成功事件
func Login(identity models.Identity) Event {
	return Event{Type: EventLogin, Identity: &identity}
}

// Start 欢迎页点击开始
func Start() Event {
	return Event{Type: EventStart}
}

// CharacterDone 角色创建完成
func CharacterDone(character *models.Character) Event {
	return Event{Type: EventCharacterDone, Character: character}
}

// PlotDone 情节构思完成
func PlotDone(plot *models.Plot) Event {
	return Event{Type: EventPlotDone, Plot: plot}
}

// StructureDone 结构选择完成
func StructureDone(structure *models.Structure) Event {
	return Event{Type: EventStructureDone, Structure: structure}
}

// WritingDone 写作完成，携带全文
func WritingDone(story string) Event {
	return Event{Type: EventWritingDone, Story: story}
}

// Edit 从回顾页跳回指定阶段
func Edit(target models.Stage) Event {
	return Event{Type: EventEdit, Target: target}
}

// Back 返回上一阶段
func Back() Event {
	return Event{Type: EventBack}
}

// Reset 清空故事并回到欢迎页
func Reset() Event {
	return Event{Type: EventReset}
}
