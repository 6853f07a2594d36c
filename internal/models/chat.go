// internal/models/chat.go
package models

// DefaultChatUser 未提供 user_id 时使用的占位用户
const DefaultChatUser = "default-user"

// DefaultChatFeature 未指定功能标签时记录的标签
const DefaultChatFeature = "plot"

// ChatRequest 前端发往 /api/dify-chat 的请求
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	Feature        string `json:"feature,omitempty"`
}

// ChatReply 规范化后的 AI 回复
type ChatReply struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
}
