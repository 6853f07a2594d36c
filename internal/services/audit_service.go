// internal/services/audit_service.go
package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Corphon/StoryWriter/internal/models"
	"github.com/Corphon/StoryWriter/internal/storage"
	"github.com/Corphon/StoryWriter/internal/utils"
)

const auditDir = "audit"

// AuditService 异步记录 AI 调用，写入失败只记日志
type AuditService struct {
	storage *storage.FileStorage
	logger  *zap.Logger
	metrics *utils.MetricsCollector
	now     func() time.Time

	mu      sync.Mutex
	idle    *sync.Cond // pending 归零时广播
	pending int
	closed  bool
}

// NewAuditService 创建审计服务
func NewAuditService(fs *storage.FileStorage, logger *zap.Logger, metrics *utils.MetricsCollector) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{
		storage: fs,
		logger:  logger.Named("audit"),
		metrics: metrics,
		now:     time.Now,
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Record 立即返回，记录在后台协程中落盘
func (s *AuditService) Record(userID, feature, endpoint string, request, response map[string]any) {
	record := models.AuditRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Feature:   feature,
		Endpoint:  endpoint,
		Request:   request,
		Response:  response,
		CreatedAt: s.now().UTC(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("audit record dropped after close", zap.String("endpoint", endpoint))
		return
	}
	s.pending++
	s.mu.Unlock()

	go func() {
		defer s.done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("audit write panicked", zap.Any("panic", r))
			}
		}()

		filename := record.CreatedAt.Format("2006-01-02") + ".jsonl"
		if err := s.storage.AppendJSONLine(auditDir, filename, record); err != nil {
			s.logger.Error("audit write failed",
				zap.String("user_id", record.UserID),
				zap.String("endpoint", record.Endpoint),
				zap.Error(err))
			s.count("audit_write_errors")
			return
		}
		s.count("audit_records")
	}()
}

func (s *AuditService) done() {
	s.mu.Lock()
	s.pending--
	if s.pending == 0 {
		s.idle.Broadcast()
	}
	s.mu.Unlock()
}

func (s *AuditService) count(name string) {
	if s.metrics != nil {
		s.metrics.IncrementCounter(name)
	}
}

// Close 拒绝新记录并等待进行中的写入
func (s *AuditService) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Flush()
}

// Flush 等待进行中的写入全部落盘，可与 Record 并发调用
func (s *AuditService) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending > 0 {
		s.idle.Wait()
	}
}

// List 按时间倒序返回审计记录；userID 为空时返回全部，limit <= 0 表示不限。
// 读取前先等待进行中的写入，刚完成的调用一定能查到。
func (s *AuditService) List(userID string, limit int) ([]models.AuditRecord, error) {
	s.Flush()

	files, err := s.storage.ListFiles(auditDir, ".jsonl")
	if err != nil {
		return nil, fmt.Errorf("listing audit files: %w", err)
	}

	records := []models.AuditRecord{}
	// 文件名是日期，从最新的一天开始读
	for i := len(files) - 1; i >= 0; i-- {
		var day []models.AuditRecord
		skipped, err := s.storage.ReadJSONLines(auditDir, files[i], func(raw json.RawMessage) bool {
			var r models.AuditRecord
			if err := json.Unmarshal(raw, &r); err != nil {
				return true
			}
			if userID == "" || r.UserID == userID {
				day = append(day, r)
			}
			return true
		})
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", files[i], err)
		}
		if skipped > 0 {
			s.logger.Warn("skipped malformed audit lines", zap.String("file", files[i]), zap.Int("count", skipped))
		}

		sort.SliceStable(day, func(a, b int) bool { return day[a].CreatedAt.After(day[b].CreatedAt) })
		records = append(records, day...)
		if limit > 0 && len(records) >= limit {
			return records[:limit], nil
		}
	}
	return records, nil
}

// Summarize 截断过长的文本，避免审计文件膨胀
func Summarize(text string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if max <= 0 || len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}
