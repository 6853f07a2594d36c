// internal/services/dashboard_service.go
package services

import (
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/Corphon/StoryWriter/internal/errors"
	"github.com/Corphon/StoryWriter/internal/models"
	"github.com/Corphon/StoryWriter/internal/storage"
	"github.com/Corphon/StoryWriter/internal/utils"
)

// DefaultLogLimit 未指定数量时返回的审计记录条数
const DefaultLogLimit = 100

// MaxLogLimit 单次可查询的审计记录上限
const MaxLogLimit = 1000

// DashboardService 教师面板的只读视图
type DashboardService struct {
	storage *storage.FileStorage
	auth    *AuthService
	audit   *AuditService
	metrics *utils.MetricsCollector
	logger  *zap.Logger
}

// NewDashboardService 创建教师面板服务
func NewDashboardService(fs *storage.FileStorage, auth *AuthService, audit *AuditService, metrics *utils.MetricsCollector, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		storage: fs,
		auth:    auth,
		audit:   audit,
		metrics: metrics,
		logger:  logger.Named("dashboard"),
	}
}

// Students 每个学生账号的最新进度，尚未登录过的学生阶段为空
func (s *DashboardService) Students() ([]models.StudentProgress, error) {
	byName := make(map[string]models.StudentProgress)

	if s.auth != nil {
		for _, name := range s.auth.Students() {
			byName[name] = models.StudentProgress{Username: name}
		}
	}

	files, err := s.storage.ListFiles(progressDir, ".json")
	if err != nil {
		return nil, apperrors.NewProcessingError("list progress", err)
	}
	for _, file := range files {
		var snapshot models.SessionSnapshot
		if err := s.storage.LoadJSONFile(progressDir, file, &snapshot); err != nil {
			if errors.Is(err, storage.ErrNotExist) {
				continue
			}
			s.logger.Warn("skip unreadable progress file", zap.String("file", file), zap.Error(err))
			continue
		}
		if snapshot.Role != models.RoleStudent {
			continue
		}
		byName[snapshot.Username] = progressOf(snapshot)
	}

	students := make([]models.StudentProgress, 0, len(byName))
	for _, p := range byName {
		students = append(students, p)
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Username < students[j].Username })
	return students, nil
}

// Logs 审计记录，limit 会被限制在 [1, MaxLogLimit]
func (s *DashboardService) Logs(userID string, limit int) ([]models.AuditRecord, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	if limit > MaxLogLimit {
		limit = MaxLogLimit
	}
	records, err := s.audit.List(strings.TrimSpace(userID), limit)
	if err != nil {
		return nil, apperrors.NewProcessingError("list audit records", err)
	}
	return records, nil
}

// Metrics 运行时计数器快照
func (s *DashboardService) Metrics() map[string]interface{} {
	if s.metrics == nil {
		return map[string]interface{}{}
	}
	return s.metrics.GetMetrics()
}

func progressOf(snapshot models.SessionSnapshot) models.StudentProgress {
	state := snapshot.StoryState
	p := models.StudentProgress{
		Username:     snapshot.Username,
		SessionID:    snapshot.SessionID,
		Stage:        snapshot.Stage,
		AIEnabled:    snapshot.AIEnabled,
		Language:     snapshot.Language.OrDefault(),
		Started:      !state.IsEmpty(),
		HasCharacter: state.Character != nil,
		HasPlot:      state.Plot != nil,
		HasStructure: state.Structure != nil,
		StoryWords:   len(strings.Fields(state.Story)),
		UpdatedAt:    snapshot.UpdatedAt,
	}
	if state.Character != nil {
		p.CharacterName = state.Character.Name
	}
	return p
}
