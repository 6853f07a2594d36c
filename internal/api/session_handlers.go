// internal/api/session_handlers.go
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Corphon/StoryWriter/internal/flow"
	"github.com/Corphon/StoryWriter/internal/models"
)

// StoryRequest 写作阶段提交的全文
type StoryRequest struct {
	Story string `json:"story" binding:"required"`
}

// EditRequest 回顾页跳回的目标阶段
type EditRequest struct {
	Stage models.Stage `json:"stage" binding:"required"`
}

// LanguageRequest 欢迎页切换界面语言
type LanguageRequest struct {
	Language models.Language `json:"language" binding:"required"`
}

// GetSession 当前会话视图
func (h *Handler) GetSession(c *gin.Context) {
	view, err := h.SessionService.Get(c.GetString(ContextKeySessionID))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, view)
}

// StartStory 欢迎页点击开始
func (h *Handler) StartStory(c *gin.Context) {
	h.apply(c, flow.Start())
}

// SubmitCharacter 角色创建完成
func (h *Handler) SubmitCharacter(c *gin.Context) {
	var character models.Character
	if err := c.ShouldBindJSON(&character); err != nil {
		h.Response.BadRequest(c, "invalid character", err.Error())
		return
	}
	h.apply(c, flow.CharacterDone(&character))
}

// SubmitPlot 情节构思完成
func (h *Handler) SubmitPlot(c *gin.Context) {
	var plot models.Plot
	if err := c.ShouldBindJSON(&plot); err != nil {
		h.Response.BadRequest(c, "invalid plot", err.Error())
		return
	}
	h.apply(c, flow.PlotDone(&plot))
}

// SubmitStructure 结构选择完成
func (h *Handler) SubmitStructure(c *gin.Context) {
	var structure models.Structure
	if err := c.ShouldBindJSON(&structure); err != nil {
		h.Response.BadRequest(c, "invalid structure", err.Error())
		return
	}
	h.apply(c, flow.StructureDone(&structure))
}

// SubmitStory 写作完成
func (h *Handler) SubmitStory(c *gin.Context) {
	var req StoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "story text is required", err.Error())
		return
	}
	h.apply(c, flow.WritingDone(req.Story))
}

// EditStage 从回顾页跳回指定阶段
func (h *Handler) EditStage(c *gin.Context) {
	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "target stage is required", err.Error())
		return
	}
	h.apply(c, flow.Edit(req.Stage))
}

// GoBack 返回上一阶段
func (h *Handler) GoBack(c *gin.Context) {
	h.apply(c, flow.Back())
}

// ResetStory 清空故事回到欢迎页
func (h *Handler) ResetStory(c *gin.Context) {
	h.apply(c, flow.Reset())
}

// SetLanguage 切换界面语言，只接受 en 与 zh
func (h *Handler) SetLanguage(c *gin.Context) {
	var req LanguageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "language is required", err.Error())
		return
	}
	view, err := h.SessionService.SetLanguage(c.GetString(ContextKeySessionID), req.Language)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, view)
}

func (h *Handler) apply(c *gin.Context, ev flow.Event) {
	view, err := h.SessionService.Apply(c.GetString(ContextKeySessionID), ev)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, view)
}
