// internal/models/session.go
package models

import "time"

// SessionSnapshot 会话进度快照，供教师面板查看
type SessionSnapshot struct {
	SessionID  string     `json:"session_id"`
	Username   string     `json:"username"`
	Role       Role       `json:"role"`
	AIEnabled  bool       `json:"ai_enabled"`
	Language   Language   `json:"language,omitempty"`
	Stage      Stage      `json:"stage"`
	StoryState StoryState `json:"story_state"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// StudentProgress 教师面板中的学生进度摘要
type StudentProgress struct {
	Username      string    `json:"username"`
	SessionID     string    `json:"session_id"`
	Stage         Stage     `json:"stage"`
	AIEnabled     bool      `json:"ai_enabled"`
	Language      Language  `json:"language,omitempty"`
	Started       bool      `json:"started"` // 已填写任何故事内容
	HasCharacter  bool      `json:"has_character"`
	HasPlot       bool      `json:"has_plot"`
	HasStructure  bool      `json:"has_structure"`
	StoryWords    int       `json:"story_words"`
	CharacterName string    `json:"character_name,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}
