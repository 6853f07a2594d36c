// internal/api/dashboard_handlers.go
package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// DashboardStudents 学生进度列表
func (h *Handler) DashboardStudents(c *gin.Context) {
	students, err := h.DashboardService.Students()
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, students)
}

// DashboardLogs AI 调用审计记录，支持 user_id 与 limit 参数
func (h *Handler) DashboardLogs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.Response.BadRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := h.DashboardService.Logs(c.Query("user_id"), limit)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, records)
}

// DashboardMetrics 运行指标
func (h *Handler) DashboardMetrics(c *gin.Context) {
	h.Response.Success(c, h.DashboardService.Metrics())
}
