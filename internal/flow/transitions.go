// internal/flow/transitions.go
package flow

import (
	"fmt"
	"strings"

	apperrors "github.com/Corphon/StoryWriter/internal/errors"
	"github.com/Corphon/StoryWriter/internal/models"
)

type guardFunc func(m *Machine, ev Event) error

type effectFunc func(m *Machine, ev Event)

type targetFunc func(m *Machine, ev Event) models.Stage

// transition 一条合法的阶段转换
type transition struct {
	to     targetFunc
	guards []guardFunc
	effect effectFunc
}

type transitionKey struct {
	From  models.Stage
	Event EventType
}

// EditTargets 回顾页可以直接跳回的阶段
var EditTargets = []models.Stage{
	models.StageCharacter,
	models.StagePlot,
	models.StageStructure,
	models.StageWriting,
}

// backTargets 带返回按钮的阶段及其上一阶段
var backTargets = map[models.Stage]models.Stage{
	models.StageCharacter: models.StageWelcome,
	models.StagePlot:      models.StageCharacter,
	models.StageStructure: models.StagePlot,
	models.StageWriting:   models.StageStructure,
	models.StageReview:    models.StageWriting,
	models.StageDashboard: models.StageWelcome,
}

// transitionTable 完整的 (阶段, 事件) 转换表，表外的组合一律拒绝
//
//	login -> dashboard | welcome
//	welcome -> character -> plot -> structure -> writing -> review
//	review -> {character, plot, structure, writing} (edit, no invalidation)
//	review -> welcome (reset, clears story state)
//	X -> predecessor (back, navigation only)
var transitionTable = map[transitionKey]transition{
	{models.StageLogin, EventLogin}: {
		to:     routeByRole,
		guards: []guardFunc{guardIdentity},
		effect: func(m *Machine, ev Event) {
			identity := *ev.Identity
			m.identity = &identity
			m.state = models.NewStoryState()
		},
	},
	{models.StageWelcome, EventStart}: {
		to: fixed(models.StageCharacter),
	},
	{models.StageCharacter, EventCharacterDone}: {
		to:     fixed(models.StagePlot),
		guards: []guardFunc{guardCharacter},
		effect: func(m *Machine, ev Event) {
			c := *ev.Character
			c.Traits = append([]string(nil), ev.Character.Traits...)
			m.state.Character = &c
		},
	},
	{models.StagePlot, EventPlotDone}: {
		to:     fixed(models.StageStructure),
		guards: []guardFunc{requireCharacter, guardPlot},
		effect: func(m *Machine, ev Event) {
			p := *ev.Plot
			m.state.Plot = &p
		},
	},
	{models.StageStructure, EventStructureDone}: {
		to:     fixed(models.StageWriting),
		guards: []guardFunc{requirePlot, guardStructure},
		effect: func(m *Machine, ev Event) {
			s := *ev.Structure
			s.Outline = append([]string(nil), ev.Structure.Outline...)
			m.state.Structure = &s
		},
	},
	{models.StageWriting, EventWritingDone}: {
		to:     fixed(models.StageReview),
		guards: []guardFunc{requireStructure, guardStory},
		effect: func(m *Machine, ev Event) {
			m.state.Story = ev.Story
		},
	},
	{models.StageReview, EventEdit}: {
		to:     func(_ *Machine, ev Event) models.Stage { return ev.Target },
		guards: []guardFunc{guardEditTarget},
	},
	{models.StageReview, EventReset}: {
		to: fixed(models.StageWelcome),
		effect: func(m *Machine, _ Event) {
			m.state = models.NewStoryState()
		},
	},
}

func init() {
	for from := range backTargets {
		transitionTable[transitionKey{from, EventBack}] = transition{
			to: func(m *Machine, _ Event) models.Stage { return backTargets[m.stage] },
		}
	}
}

func fixed(stage models.Stage) targetFunc {
	return func(*Machine, Event) models.Stage { return stage }
}

// routeByRole 教师进入面板，学生进入欢迎页
func routeByRole(_ *Machine, ev Event) models.Stage {
	if ev.Identity.IsTeacher() {
		return models.StageDashboard
	}
	return models.StageWelcome
}

func guardIdentity(_ *Machine, ev Event) error {
	if ev.Identity == nil {
		return apperrors.NewValidationError("login requires an identity", nil)
	}
	if strings.TrimSpace(ev.Identity.Username) == "" {
		return apperrors.NewValidationError("login requires a username", nil)
	}
	if !ev.Identity.Role.Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown role %q", ev.Identity.Role), nil)
	}
	return nil
}

func guardCharacter(_ *Machine, ev Event) error {
	if ev.Character == nil {
		return apperrors.NewValidationError("character is required", nil)
	}
	return nil
}

func guardPlot(_ *Machine, ev Event) error {
	if ev.Plot == nil {
		return apperrors.NewValidationError("plot is required", nil)
	}
	return nil
}

func guardStructure(_ *Machine, ev Event) error {
	if ev.Structure == nil {
		return apperrors.NewValidationError("structure is required", nil)
	}
	if !ev.Structure.Type.Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown structure type %q", ev.Structure.Type), nil)
	}
	return nil
}

func guardStory(_ *Machine, ev Event) error {
	if strings.TrimSpace(ev.Story) == "" {
		return apperrors.NewValidationError("story text is required", nil)
	}
	return nil
}

func guardEditTarget(_ *Machine, ev Event) error {
	for _, stage := range EditTargets {
		if ev.Target == stage {
			return nil
		}
	}
	return apperrors.NewTransitionError(fmt.Sprintf("cannot edit stage %q", ev.Target), nil)
}

func requireCharacter(m *Machine, _ Event) error {
	if m.state.Character == nil {
		return apperrors.NewTransitionError("plot requires a character", nil)
	}
	return nil
}

func requirePlot(m *Machine, _ Event) error {
	if m.state.Plot == nil {
		return apperrors.NewTransitionError("structure requires a plot", nil)
	}
	return nil
}

func requireStructure(m *Machine, _ Event) error {
	if m.state.Structure == nil {
		return apperrors.NewTransitionError("writing requires a structure", nil)
	}
	return nil
}
