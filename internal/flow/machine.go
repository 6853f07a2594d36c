// internal/flow/machine.go
package flow

import (
	"fmt"
	"sort"

	apperrors "github.com/Corphon/StoryWriter/internal/errors"
	"github.com/Corphon/StoryWriter/internal/models"
)

// Transition 一次已生效的阶段变化
type Transition struct {
	From  models.Stage `json:"from"`
	To    models.Stage `json:"to"`
	Event EventType    `json:"event"`
}

// Machine 单个会话的阶段状态机
// 不是并发安全的，由 SessionService 在会话锁内独占调用
type Machine struct {
	stage    models.Stage
	identity *models.Identity
	state    models.StoryState
}

// NewMachine 创建处于登录阶段的状态机
func NewMachine() *Machine {
	return &Machine{
		stage: models.StageLogin,
		state: models.NewStoryState(),
	}
}

// Restore 由持久化快照重建状态机
func Restore(stage models.Stage, identity *models.Identity, state models.StoryState) (*Machine, error) {
	if !stage.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown stage %q", stage), nil)
	}
	m := &Machine{stage: stage, state: state.Clone()}
	if stage == models.StageLogin {
		return m, nil
	}
	if identity == nil {
		return nil, apperrors.NewValidationError("snapshot without identity", nil)
	}
	id := *identity
	m.identity = &id
	return m, nil
}

// Stage 当前阶段
func (m *Machine) Stage() models.Stage {
	return m.stage
}

// Identity 当前身份，未登录时 ok 为 false
func (m *Machine) Identity() (models.Identity, bool) {
	if m.identity == nil {
		return models.Identity{}, false
	}
	return *m.identity, true
}

// AIEnabled 登录时确定，整个会话不变
func (m *Machine) AIEnabled() bool {
	return m.identity != nil && m.identity.AIEnabled
}

// State 返回故事状态的副本
func (m *Machine) State() models.StoryState {
	return m.state.Clone()
}

// Component 当前阶段应渲染的组件
func (m *Machine) Component() Component {
	component, _ := Dispatch(m.stage, m.AIEnabled())
	return component
}

// Apply 应用事件；被拒绝时返回错误且阶段与状态都不变
func (m *Machine) Apply(ev Event) (Transition, error) {
	t, ok := transitionTable[transitionKey{From: m.stage, Event: ev.Type}]
	if !ok {
		return Transition{}, apperrors.NewTransitionError(
			fmt.Sprintf("event %q is not valid in stage %q", ev.Type, m.stage), nil)
	}

	for _, guard := range t.guards {
		if err := guard(m, ev); err != nil {
			return Transition{}, err
		}
	}

	from := m.stage
	to := t.to(m, ev)
	if t.effect != nil {
		t.effect(m, ev)
	}
	m.stage = to

	return Transition{From: from, To: to, Event: ev.Type}, nil
}

// AllowedEvents 当前阶段可以接受的事件，按名称排序
func (m *Machine) AllowedEvents() []EventType {
	var events []EventType
	for key := range transitionTable {
		if key.From == m.stage {
			events = append(events, key.Event)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i] < events[j] })
	return events
}

// BackTarget 返回按钮的目标阶段
func (m *Machine) BackTarget() (models.Stage, bool) {
	stage, ok := backTargets[m.stage]
	return stage, ok
}
