package services

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "github.com/Corphon/StoryWriter/internal/errors"
	"github.com/Corphon/StoryWriter/internal/flow"
	"github.com/Corphon/StoryWriter/internal/models"
	"github.com/Corphon/StoryWriter/internal/storage"
	"github.com/Corphon/StoryWriter/internal/utils"
)

var (
	tom       = models.Identity{Username: "tom", Role: models.RoleStudent, AIEnabled: true}
	ann       = models.Identity{Username: "ann", Role: models.RoleStudent, AIEnabled: false}
	msLee     = models.Identity{Username: "ms-lee", Role: models.RoleTeacher, AIEnabled: true}
	pip       = &models.Character{Name: "Pip", Age: 9, Traits: []string{"brave"}}
	stormPlot = &models.Plot{Setting: "forest", Conflict: "storm", Goal: "home"}
	threeAct  = &models.Structure{Type: models.StructureThreeAct, Outline: []string{"a", "b", "c"}}
)

func newSessionService(t *testing.T) (*SessionService, *storage.FileStorage, *utils.MetricsCollector) {
	t.Helper()
	fs, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	metrics := utils.NewMetricsCollector()
	return NewSessionService(fs, NewLockManager(0), zaptest.NewLogger(t), metrics), fs, metrics
}

func mustApply(t *testing.T, s *SessionService, id string, ev flow.Event) *SessionView {
	t.Helper()
	view, err := s.Apply(id, ev)
	require.NoError(t, err)
	return view
}

func TestCreateSession(t *testing.T) {
	s, fs, metrics := newSessionService(t)

	view, err := s.Create(tom)
	require.NoError(t, err)
	assert.NotEmpty(t, view.SessionID)
	assert.Equal(t, models.StageWelcome, view.Stage)
	assert.Equal(t, "welcome-page", view.Component.Name)
	assert.Equal(t, models.AuthUser{Username: "tom", Role: models.RoleStudent}, view.User)
	assert.Equal(t, []flow.EventType{flow.EventStart}, view.AllowedEvents)
	assert.True(t, fs.FileExists(sessionsDir, view.SessionID+".json"))
	assert.Equal(t, int64(1), metrics.GetGauge("sessions_active"))

	teacherView, err := s.Create(msLee)
	require.NoError(t, err)
	assert.Equal(t, models.StageDashboard, teacherView.Stage)
	assert.NotEqual(t, view.SessionID, teacherView.SessionID)

	_, err = s.Create(models.Identity{Username: "x", Role: "admin"})
	assert.True(t, apperrors.IsValidationError(err))
}

func TestSessionFullFlow(t *testing.T) {
	s, fs, metrics := newSessionService(t)
	view, err := s.Create(tom)
	require.NoError(t, err)
	id := view.SessionID

	mustApply(t, s, id, flow.Start())
	view = mustApply(t, s, id, flow.CharacterDone(pip))
	assert.Equal(t, models.StagePlot, view.Stage)
	assert.Equal(t, "plot-brainstorm", view.Component.Name)
	assert.Equal(t, pip, view.Input.Character)

	mustApply(t, s, id, flow.PlotDone(stormPlot))
	mustApply(t, s, id, flow.StructureDone(threeAct))
	view = mustApply(t, s, id, flow.WritingDone("Once."))
	assert.Equal(t, models.StageReview, view.Stage)
	assert.Equal(t, "Once.", view.StoryState.Story)

	// 学生进度写入教师面板目录
	var progress models.SessionSnapshot
	require.NoError(t, fs.LoadJSONFile(progressDir, "tom.json", &progress))
	assert.Equal(t, models.StageReview, progress.Stage)
	assert.Equal(t, "Once.", progress.StoryState.Story)

	assert.Equal(t, int64(6), metrics.GetCounterValue("stage_transitions_total"))
}

func TestNonAISessionGetsManualComponents(t *testing.T) {
	s, _, _ := newSessionService(t)
	view, err := s.Create(ann)
	require.NoError(t, err)

	view = mustApply(t, s, view.SessionID, flow.Start())
	assert.Equal(t, "character-creation-no-ai", view.Component.Name)
	assert.False(t, view.Component.AIAssisted)
	assert.True(t, view.User.NoAI)
}

func TestRejectedEventLeavesSessionUntouched(t *testing.T) {
	s, fs, _ := newSessionService(t)
	view, err := s.Create(tom)
	require.NoError(t, err)
	id := view.SessionID
	mustApply(t, s, id, flow.Start())

	before, err := s.Get(id)
	require.NoError(t, err)

	_, err = s.Apply(id, flow.PlotDone(stormPlot))
	assert.True(t, apperrors.IsTransitionError(err))
	assert.Equal(t, 409, apperrors.HTTPStatus(err))

	_, err = s.Apply(id, flow.CharacterDone(nil))
	assert.True(t, apperrors.IsValidationError(err))

	after, err := s.Get(id)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(before, after, cmpopts.IgnoreUnexported(flow.Component{})))

	var snapshot models.SessionSnapshot
	require.NoError(t, fs.LoadJSONFile(sessionsDir, id+".json", &snapshot))
	assert.Equal(t, models.StageCharacter, snapshot.Stage)
}

func TestSessionRestoredFromSnapshot(t *testing.T) {
	s, fs, _ := newSessionService(t)
	view, err := s.Create(tom)
	require.NoError(t, err)
	id := view.SessionID
	mustApply(t, s, id, flow.Start())
	mustApply(t, s, id, flow.CharacterDone(pip))

	// 模拟进程重启
	restarted := NewSessionService(fs, NewLockManager(0), zaptest.NewLogger(t), nil)
	got, err := restarted.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StagePlot, got.Stage)
	assert.Equal(t, "Pip", got.StoryState.Character.Name)
	assert.Equal(t, "tom", got.User.Username)

	got = mustApply(t, restarted, id, flow.PlotDone(stormPlot))
	assert.Equal(t, models.StageStructure, got.Stage)
}

func TestSetLanguage(t *testing.T) {
	s, fs, _ := newSessionService(t)
	view, err := s.Create(tom)
	require.NoError(t, err)
	id := view.SessionID
	assert.Equal(t, models.LanguageEnglish, view.Language)

	_, err = s.SetLanguage(id, "fr")
	assert.True(t, apperrors.IsValidationError(err))

	updates, cancel := s.Subscribe(id)
	defer cancel()

	view, err = s.SetLanguage(id, models.LanguageChinese)
	require.NoError(t, err)
	assert.Equal(t, models.LanguageChinese, view.Language)
	assert.Equal(t, models.StageWelcome, view.Stage)

	select {
	case v := <-updates:
		assert.Equal(t, models.LanguageChinese, v.Language)
	case <-time.After(time.Second):
		t.Fatal("no view published")
	}

	// 阶段转换与重启都保留语言
	view = mustApply(t, s, id, flow.Start())
	assert.Equal(t, models.LanguageChinese, view.Language)

	restarted := NewSessionService(fs, NewLockManager(0), zaptest.NewLogger(t), nil)
	got, err := restarted.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.LanguageChinese, got.Language)

	_, err = s.SetLanguage("6f1c1f8e-4a51-4c1b-9d76-0b7f1c2d3e4f", models.LanguageEnglish)
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestSnapshotWithoutLanguageDefaultsToEnglish(t *testing.T) {
	s, fs, _ := newSessionService(t)
	view, err := s.Create(tom)
	require.NoError(t, err)

	var snapshot models.SessionSnapshot
	require.NoError(t, fs.LoadJSONFile(sessionsDir, view.SessionID+".json", &snapshot))
	snapshot.Language = ""
	require.NoError(t, fs.SaveJSONFile(sessionsDir, view.SessionID+".json", snapshot))

	restarted := NewSessionService(fs, NewLockManager(0), zaptest.NewLogger(t), nil)
	got, err := restarted.Get(view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.LanguageEnglish, got.Language)
}

func TestUnknownSession(t *testing.T) {
	s, _, _ := newSessionService(t)

	for _, id := range []string{"nope", "../../etc/passwd", "6f1c1f8e-4a51-4c1b-9d76-0b7f1c2d3e4f"} {
		_, err := s.Get(id)
		assert.True(t, apperrors.IsNotFoundError(err), id)
		_, err = s.Apply(id, flow.Start())
		assert.True(t, apperrors.IsNotFoundError(err), id)
		assert.True(t, apperrors.IsNotFoundError(s.Destroy(id)), id)
	}
}

func TestDestroySession(t *testing.T) {
	s, fs, metrics := newSessionService(t)
	view, err := s.Create(tom)
	require.NoError(t, err)
	id := view.SessionID

	updates, cancel := s.Subscribe(id)
	defer cancel()

	require.NoError(t, s.Destroy(id))
	_, err = s.Get(id)
	assert.True(t, apperrors.IsNotFoundError(err))
	assert.False(t, fs.FileExists(sessionsDir, id+".json"))
	// 进度保留
	assert.True(t, fs.FileExists(progressDir, "tom.json"))
	assert.Zero(t, metrics.GetGauge("sessions_active"))

	_, open := <-updates
	assert.False(t, open)
}

func TestSubscribeReceivesViews(t *testing.T) {
	s, _, _ := newSessionService(t)
	view, err := s.Create(tom)
	require.NoError(t, err)
	id := view.SessionID

	updates, cancel := s.Subscribe(id)
	mustApply(t, s, id, flow.Start())

	select {
	case v := <-updates:
		assert.Equal(t, models.StageCharacter, v.Stage)
	case <-time.After(time.Second):
		t.Fatal("no view published")
	}

	cancel()
	cancel()
	_, open := <-updates
	assert.False(t, open)

	// 取消后再推送不会阻塞
	mustApply(t, s, id, flow.Back())
}

func TestConcurrentEventsAreSerialized(t *testing.T) {
	s, _, _ := newSessionService(t)
	view, err := s.Create(tom)
	require.NoError(t, err)
	id := view.SessionID

	// 多个并发 start 只有一个能成功
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Apply(id, flow.Start()); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, models.StageCharacter, got.Stage)
}
