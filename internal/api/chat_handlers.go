// internal/api/chat_handlers.go
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Corphon/StoryWriter/internal/errors"
	"github.com/Corphon/StoryWriter/internal/models"
	"github.com/Corphon/StoryWriter/internal/services"
)

// DifyChat 转发一次对话到 Dify，响应格式为 {answer, conversation_id, message_id} 或 {error}
func (h *Handler) DifyChat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	reply, err := h.GatewayService.Chat(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": services.ClientMessage(err)})
		return
	}

	c.JSON(http.StatusOK, reply)
}
