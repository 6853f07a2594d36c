// internal/services/session_service.go
package services

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/Corphon/StoryWriter/internal/errors"
	"github.com/Corphon/StoryWriter/internal/flow"
	"github.com/Corphon/StoryWriter/internal/models"
	"github.com/Corphon/StoryWriter/internal/storage"
	"github.com/Corphon/StoryWriter/internal/utils"
)

const (
	sessionsDir = "sessions"
	progressDir = "progress"

	subscriberBuffer = 8
)

// SessionView 客户端渲染当前阶段所需的全部信息
type SessionView struct {
	SessionID     string            `json:"session_id"`
	User          models.AuthUser   `json:"user"`
	Language      models.Language   `json:"language"`
	Stage         models.Stage      `json:"stage"`
	Component     flow.Component    `json:"component"`
	Input         flow.StageInput   `json:"input"`
	StoryState    models.StoryState `json:"story_state"`
	AllowedEvents []flow.EventType  `json:"allowed_events"`
	BackTarget    models.Stage      `json:"back_target,omitempty"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// session 一个登录会话，状态机只在会话锁内访问
type session struct {
	id        string
	machine   *flow.Machine
	language  models.Language
	createdAt time.Time
	updatedAt time.Time
}

// SessionService 会话的唯一所有者，负责把事件应用到各自的状态机
type SessionService struct {
	storage *storage.FileStorage
	locks   *LockManager
	logger  *zap.Logger
	metrics *utils.MetricsCollector
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session

	subMu       sync.Mutex
	subscribers map[string]map[chan SessionView]struct{}
}

// NewSessionService 创建会话服务
func NewSessionService(fs *storage.FileStorage, locks *LockManager, logger *zap.Logger, metrics *utils.MetricsCollector) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locks == nil {
		locks = NewLockManager(0)
	}
	return &SessionService{
		storage:     fs,
		locks:       locks,
		logger:      logger.Named("session"),
		metrics:     metrics,
		now:         time.Now,
		sessions:    make(map[string]*session),
		subscribers: make(map[string]map[chan SessionView]struct{}),
	}
}

// Create 为已认证的身份创建会话并完成登录跳转
func (s *SessionService) Create(identity models.Identity) (*SessionView, error) {
	machine := flow.NewMachine()
	t, err := machine.Apply(flow.Login(identity))
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sess := &session{
		id:        uuid.NewString(),
		machine:   machine,
		language:  models.DefaultLanguage,
		createdAt: now,
		updatedAt: now,
	}

	if err := s.persist(sess); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.countTransition(t)
	if s.metrics != nil {
		s.metrics.IncGauge("sessions_active")
	}
	s.logger.Info("session created",
		zap.String("session_id", sess.id),
		zap.String("username", identity.Username),
		zap.String("stage", string(t.To)))

	view := s.view(sess)
	return &view, nil
}

// Get 返回会话当前视图，内存中没有时从快照恢复
func (s *SessionService) Get(sessionID string) (*SessionView, error) {
	var view SessionView
	err := s.locks.ExecuteWithSessionLock(sessionID, func() error {
		sess, err := s.lookup(sessionID)
		if err != nil {
			return err
		}
		view = s.view(sess)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// Apply 在会话锁内应用事件；失败时阶段与状态保持不变
func (s *SessionService) Apply(sessionID string, ev flow.Event) (*SessionView, error) {
	var view SessionView
	err := s.locks.ExecuteWithSessionLock(sessionID, func() error {
		sess, err := s.lookup(sessionID)
		if err != nil {
			return err
		}

		// 快照写入失败时回滚，先在副本上应用
		stage := sess.machine.Stage()
		identity, _ := sess.machine.Identity()
		candidate, err := flow.Restore(stage, &identity, sess.machine.State())
		if err != nil {
			return apperrors.NewProcessingError("copy session state", err)
		}

		t, err := candidate.Apply(ev)
		if err != nil {
			s.logger.Debug("event rejected",
				zap.String("session_id", sessionID),
				zap.String("stage", string(stage)),
				zap.String("event", string(ev.Type)),
				zap.Error(err))
			return err
		}

		next := &session{
			id:        sess.id,
			machine:   candidate,
			language:  sess.language,
			createdAt: sess.createdAt,
			updatedAt: s.now().UTC(),
		}
		if err := s.persist(next); err != nil {
			return err
		}
		sess.machine = next.machine
		sess.updatedAt = next.updatedAt

		s.countTransition(t)
		s.logger.Info("stage changed",
			zap.String("session_id", sessionID),
			zap.String("from", string(t.From)),
			zap.String("to", string(t.To)),
			zap.String("event", string(t.Event)))

		view = s.view(sess)
		// 锁内推送，保证订阅者看到的顺序与应用顺序一致
		s.publish(view)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// SetLanguage 切换界面语言，不经过状态机，阶段与故事状态不变
func (s *SessionService) SetLanguage(sessionID string, lang models.Language) (*SessionView, error) {
	if !lang.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unsupported language %q, expected en or zh", lang), nil)
	}

	var view SessionView
	err := s.locks.ExecuteWithSessionLock(sessionID, func() error {
		sess, err := s.lookup(sessionID)
		if err != nil {
			return err
		}
		if sess.language == lang {
			view = s.view(sess)
			return nil
		}

		next := &session{
			id:        sess.id,
			machine:   sess.machine,
			language:  lang,
			createdAt: sess.createdAt,
			updatedAt: s.now().UTC(),
		}
		if err := s.persist(next); err != nil {
			return err
		}
		sess.language = lang
		sess.updatedAt = next.updatedAt

		s.logger.Info("language changed",
			zap.String("session_id", sessionID),
			zap.String("language", string(lang)))

		view = s.view(sess)
		s.publish(view)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// Destroy 注销会话；学生进度记录保留供教师查看
func (s *SessionService) Destroy(sessionID string) error {
	err := s.locks.ExecuteWithSessionLock(sessionID, func() error {
		s.mu.Lock()
		_, inMemory := s.sessions[sessionID]
		delete(s.sessions, sessionID)
		s.mu.Unlock()

		if !inMemory && !s.storage.FileExists(sessionsDir, sessionFile(sessionID)) {
			return apperrors.NewNotFoundError("session not found", nil)
		}
		if err := s.storage.DeleteFile(sessionsDir, sessionFile(sessionID)); err != nil {
			return apperrors.NewProcessingError("delete session snapshot", err)
		}
		if inMemory && s.metrics != nil {
			s.metrics.DecGauge("sessions_active")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.locks.Forget(sessionID)
	s.closeSubscribers(sessionID)
	s.logger.Info("session destroyed", zap.String("session_id", sessionID))
	return nil
}

// Subscribe 订阅会话视图更新，返回的 cancel 必须调用
func (s *SessionService) Subscribe(sessionID string) (<-chan SessionView, func()) {
	ch := make(chan SessionView, subscriberBuffer)

	s.subMu.Lock()
	if s.subscribers[sessionID] == nil {
		s.subscribers[sessionID] = make(map[chan SessionView]struct{})
	}
	s.subscribers[sessionID][ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if subs, ok := s.subscribers[sessionID]; ok {
				if _, ok := subs[ch]; ok {
					delete(subs, ch)
					close(ch)
				}
				if len(subs) == 0 {
					delete(s.subscribers, sessionID)
				}
			}
		})
	}
	return ch, cancel
}

// publish 非阻塞推送，慢订阅者会丢失中间视图
func (s *SessionService) publish(view SessionView) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for ch := range s.subscribers[view.SessionID] {
		select {
		case ch <- view:
		default:
			s.logger.Warn("subscriber lagging, view dropped", zap.String("session_id", view.SessionID))
		}
	}
}

func (s *SessionService) closeSubscribers(sessionID string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for ch := range s.subscribers[sessionID] {
		close(ch)
	}
	delete(s.subscribers, sessionID)
}

// lookup 调用方必须持有会话锁
func (s *SessionService) lookup(sessionID string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return sess, nil
	}

	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, apperrors.NewNotFoundError("session not found", nil)
	}

	var snapshot models.SessionSnapshot
	if err := s.storage.LoadJSONFile(sessionsDir, sessionFile(sessionID), &snapshot); err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil, apperrors.NewNotFoundError("session not found", nil)
		}
		return nil, apperrors.NewProcessingError("load session snapshot", err)
	}

	identity := models.Identity{Username: snapshot.Username, Role: snapshot.Role, AIEnabled: snapshot.AIEnabled}
	machine, err := flow.Restore(snapshot.Stage, &identity, snapshot.StoryState)
	if err != nil {
		return nil, apperrors.NewProcessingError("restore session", err)
	}

	sess = &session{
		id:        sessionID,
		machine:   machine,
		language:  snapshot.Language.OrDefault(),
		createdAt: snapshot.CreatedAt,
		updatedAt: snapshot.UpdatedAt,
	}

	s.mu.Lock()
	s.sessions[sessionID] = sess
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.IncGauge("sessions_active")
	}

	s.logger.Info("session restored from snapshot", zap.String("session_id", sessionID))
	return sess, nil
}

func (s *SessionService) snapshot(sess *session) models.SessionSnapshot {
	identity, _ := sess.machine.Identity()
	return models.SessionSnapshot{
		SessionID:  sess.id,
		Username:   identity.Username,
		Role:       identity.Role,
		AIEnabled:  identity.AIEnabled,
		Language:   sess.language,
		Stage:      sess.machine.Stage(),
		StoryState: sess.machine.State(),
		CreatedAt:  sess.createdAt,
		UpdatedAt:  sess.updatedAt,
	}
}

// persist 写入会话快照和学生最新进度
func (s *SessionService) persist(sess *session) error {
	snapshot := s.snapshot(sess)
	if err := s.storage.SaveJSONFile(sessionsDir, sessionFile(sess.id), snapshot); err != nil {
		return apperrors.NewProcessingError("save session snapshot", err)
	}
	if snapshot.Role == models.RoleStudent {
		if err := s.storage.SaveJSONFile(progressDir, progressFile(snapshot.Username), snapshot); err != nil {
			// 进度只用于教师面板，失败不影响学生流程
			s.logger.Warn("save progress failed", zap.String("username", snapshot.Username), zap.Error(err))
		}
	}
	return nil
}

func (s *SessionService) view(sess *session) SessionView {
	identity, _ := sess.machine.Identity()
	state := sess.machine.State()
	component := sess.machine.Component()
	back, _ := sess.machine.BackTarget()

	return SessionView{
		SessionID:     sess.id,
		User:          identity.ToAuthUser(),
		Language:      sess.language,
		Stage:         sess.machine.Stage(),
		Component:     component,
		Input:         component.Input(state),
		StoryState:    state,
		AllowedEvents: sess.machine.AllowedEvents(),
		BackTarget:    back,
		UpdatedAt:     sess.updatedAt,
	}
}

func (s *SessionService) countTransition(t flow.Transition) {
	if s.metrics != nil {
		s.metrics.RecordTransition(string(t.From), string(t.To))
	}
}

func sessionFile(sessionID string) string {
	return sessionID + ".json"
}

// progressFile 用户名中的路径字符替换掉
func progressFile(username string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return fmt.Sprintf("%s.json", replacer.Replace(username))
}
