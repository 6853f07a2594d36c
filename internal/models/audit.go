// internal/models/audit.go
package models

import "time"

// AuditRecord 一次 AI 调用的审计记录
type AuditRecord struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Feature   string         `json:"feature"`
	Endpoint  string         `json:"endpoint"`
	Request   map[string]any `json:"request,omitempty"`
	Response  map[string]any `json:"response,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
