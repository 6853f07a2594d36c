package flow

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/StoryWriter/internal/errors"
	"github.com/Corphon/StoryWriter/internal/models"
)

var (
	student   = models.Identity{Username: "tom", Role: models.RoleStudent, AIEnabled: true}
	noAIKid   = models.Identity{Username: "ann", Role: models.RoleStudent, AIEnabled: false}
	teacher   = models.Identity{Username: "ms-lee", Role: models.RoleTeacher, AIEnabled: true}
	character = &models.Character{Name: "Pip", Age: 9, Traits: []string{"brave", "curious"}, Description: "a fox", Species: "fox"}
	plot      = &models.Plot{Setting: "forest", Conflict: "storm", Goal: "get home"}
	structure = &models.Structure{Type: models.StructureThreeAct, Outline: []string{"setup", "storm", "home"}}
)

func apply(t *testing.T, m *Machine, ev Event) Transition {
	t.Helper()
	tr, err := m.Apply(ev)
	require.NoError(t, err)
	return tr
}

// machineAtReview walks a student through every stage.
func machineAtReview(t *testing.T) *Machine {
	t.Helper()
	m := NewMachine()
	apply(t, m, Login(student))
	apply(t, m, Start())
	apply(t, m, CharacterDone(character))
	apply(t, m, PlotDone(plot))
	apply(t, m, StructureDone(structure))
	apply(t, m, WritingDone("Once upon a time."))
	require.Equal(t, models.StageReview, m.Stage())
	return m
}

func TestLoginRoutesByRole(t *testing.T) {
	m := NewMachine()
	assert.Equal(t, models.StageLogin, m.Stage())
	tr := apply(t, m, Login(student))
	assert.Equal(t, Transition{From: models.StageLogin, To: models.StageWelcome, Event: EventLogin}, tr)

	m = NewMachine()
	apply(t, m, Login(teacher))
	assert.Equal(t, models.StageDashboard, m.Stage())

	// 教师从面板进入学生流程
	apply(t, m, Back())
	assert.Equal(t, models.StageWelcome, m.Stage())
}

func TestLoginGuards(t *testing.T) {
	m := NewMachine()

	_, err := m.Apply(Event{Type: EventLogin})
	assert.True(t, apperrors.IsValidationError(err))

	_, err = m.Apply(Login(models.Identity{Username: "  ", Role: models.RoleStudent}))
	assert.True(t, apperrors.IsValidationError(err))

	_, err = m.Apply(Login(models.Identity{Username: "x", Role: "admin"}))
	assert.True(t, apperrors.IsValidationError(err))

	assert.Equal(t, models.StageLogin, m.Stage())
	_, ok := m.Identity()
	assert.False(t, ok)
}

func TestForwardSequence(t *testing.T) {
	m := NewMachine()
	apply(t, m, Login(student))
	apply(t, m, Start())
	assert.Equal(t, models.StageCharacter, m.Stage())

	apply(t, m, CharacterDone(character))
	assert.Equal(t, models.StagePlot, m.Stage())
	s := m.State()
	assert.Equal(t, character, s.Character)
	assert.Nil(t, s.Plot)
	assert.Nil(t, s.Structure)
	assert.Empty(t, s.Story)

	apply(t, m, PlotDone(plot))
	assert.Equal(t, models.StageStructure, m.Stage())
	assert.Equal(t, plot, m.State().Plot)
	assert.Nil(t, m.State().Structure)

	apply(t, m, StructureDone(structure))
	assert.Equal(t, models.StageWriting, m.Stage())
	assert.Equal(t, structure, m.State().Structure)

	apply(t, m, WritingDone("The end."))
	assert.Equal(t, models.StageReview, m.Stage())
	assert.Equal(t, "The end.", m.State().Story)
}

func TestCompletionCopiesPayload(t *testing.T) {
	m := NewMachine()
	apply(t, m, Login(student))
	apply(t, m, Start())

	c := &models.Character{Name: "Pip", Traits: []string{"brave"}}
	apply(t, m, CharacterDone(c))
	c.Name = "changed"
	c.Traits[0] = "changed"

	assert.Equal(t, "Pip", m.State().Character.Name)
	assert.Equal(t, []string{"brave"}, m.State().Character.Traits)
}

func TestEditFromReviewKeepsState(t *testing.T) {
	for _, target := range EditTargets {
		t.Run(string(target), func(t *testing.T) {
			m := machineAtReview(t)
			before := m.State()

			tr := apply(t, m, Edit(target))
			assert.Equal(t, target, tr.To)
			assert.Equal(t, target, m.Stage())

			if diff := cmp.Diff(before, m.State()); diff != "" {
				t.Fatalf("edit changed story state (-before +after):\n%s", diff)
			}
		})
	}
}

func TestEditThenResubmitOverwritesOnlyThatSlice(t *testing.T) {
	m := machineAtReview(t)
	apply(t, m, Edit(models.StageCharacter))

	renamed := &models.Character{Name: "Rex", Age: 10}
	apply(t, m, CharacterDone(renamed))

	s := m.State()
	assert.Equal(t, "Rex", s.Character.Name)
	// 下游内容不会被清空
	assert.Equal(t, plot, s.Plot)
	assert.Equal(t, structure, s.Structure)
	assert.Equal(t, "Once upon a time.", s.Story)
	assert.Equal(t, models.StagePlot, m.Stage())
}

func TestEditRejectsNonContentTargets(t *testing.T) {
	for _, target := range []models.Stage{models.StageWelcome, models.StageLogin, models.StageReview, models.StageDashboard, "nowhere"} {
		m := machineAtReview(t)
		before := m.State()
		_, err := m.Apply(Edit(target))
		assert.True(t, apperrors.IsTransitionError(err), "target %s", target)
		assert.Equal(t, models.StageReview, m.Stage())
		assert.Empty(t, cmp.Diff(before, m.State()))
	}
}

func TestResetClearsState(t *testing.T) {
	m := machineAtReview(t)
	apply(t, m, Reset())

	assert.Equal(t, models.StageWelcome, m.Stage())
	assert.True(t, m.State().IsEmpty())
	assert.Empty(t, cmp.Diff(models.NewStoryState(), m.State()))

	identity, ok := m.Identity()
	assert.True(t, ok, "reset keeps the identity")
	assert.Equal(t, student, identity)
}

func TestBackIsNavigationOnly(t *testing.T) {
	m := machineAtReview(t)
	before := m.State()

	expected := []models.Stage{
		models.StageWriting,
		models.StageStructure,
		models.StagePlot,
		models.StageCharacter,
		models.StageWelcome,
	}
	for _, want := range expected {
		apply(t, m, Back())
		assert.Equal(t, want, m.Stage())
		assert.Empty(t, cmp.Diff(before, m.State()))
	}

	// 欢迎页没有返回按钮
	_, err := m.Apply(Back())
	assert.True(t, apperrors.IsTransitionError(err))
}

func TestInvalidTransitionsLeaveMachineUntouched(t *testing.T) {
	m := NewMachine()
	apply(t, m, Login(student))

	invalid := []Event{
		CharacterDone(character),
		PlotDone(plot),
		WritingDone("x"),
		Reset(),
		Edit(models.StageCharacter),
		Login(student),
		{Type: "jump"},
	}
	for _, ev := range invalid {
		_, err := m.Apply(ev)
		assert.True(t, apperrors.IsTransitionError(err), "event %s", ev.Type)
		assert.Equal(t, models.StageWelcome, m.Stage())
		assert.True(t, m.State().IsEmpty())
	}
}

func TestCompletionGuards(t *testing.T) {
	m := NewMachine()
	apply(t, m, Login(student))
	apply(t, m, Start())

	_, err := m.Apply(CharacterDone(nil))
	assert.True(t, apperrors.IsValidationError(err))
	assert.Equal(t, models.StageCharacter, m.Stage())

	apply(t, m, CharacterDone(character))
	_, err = m.Apply(PlotDone(nil))
	assert.True(t, apperrors.IsValidationError(err))

	apply(t, m, PlotDone(plot))
	_, err = m.Apply(StructureDone(&models.Structure{Type: "fiveAct"}))
	assert.True(t, apperrors.IsValidationError(err))
	assert.Equal(t, models.StageStructure, m.Stage())

	apply(t, m, StructureDone(structure))
	_, err = m.Apply(WritingDone("   "))
	assert.True(t, apperrors.IsValidationError(err))
	assert.Equal(t, models.StageWriting, m.Stage())
	assert.Empty(t, m.State().Story)
}

func TestPrerequisiteGuards(t *testing.T) {
	// 通过直接设置阶段模拟缺失前置状态的情况
	m := NewMachine()
	apply(t, m, Login(student))

	m.stage = models.StagePlot
	_, err := m.Apply(PlotDone(plot))
	assert.True(t, apperrors.IsTransitionError(err))

	m.stage = models.StageStructure
	_, err = m.Apply(StructureDone(structure))
	assert.True(t, apperrors.IsTransitionError(err))

	m.stage = models.StageWriting
	_, err = m.Apply(WritingDone("text"))
	assert.True(t, apperrors.IsTransitionError(err))

	assert.True(t, m.State().IsEmpty())
}

func TestAllowedEvents(t *testing.T) {
	m := machineAtReview(t)
	assert.Equal(t, []EventType{EventBack, EventEdit, EventReset}, m.AllowedEvents())

	target, ok := m.BackTarget()
	assert.True(t, ok)
	assert.Equal(t, models.StageWriting, target)

	m = NewMachine()
	assert.Equal(t, []EventType{EventLogin}, m.AllowedEvents())
	_, ok = m.BackTarget()
	assert.False(t, ok)
}

func TestStateIsACopy(t *testing.T) {
	m := machineAtReview(t)
	s := m.State()
	s.Character.Name = "mutated"
	s.Structure.Outline[0] = "mutated"

	assert.Equal(t, "Pip", m.State().Character.Name)
	assert.Equal(t, "setup", m.State().Structure.Outline[0])
}
