package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feedback_management/internal/auth"
	"github.com/feedback_management/internal/models"
	"github.com/feedback_management/internal/services"
	"github.com/feedback_management/pkg/utils"
)

// TaskHandler 封装了升级工单接口
type TaskHandler struct {
	service services.TaskService
}

// NewTaskHandler 创建一个新的 TaskHandler 实例
func NewTaskHandler(service services.TaskService) *TaskHandler {
	return &TaskHandler{service: service}
}

type UpdateTaskStatusPayload struct {
	Status models.TaskStatus `json:"status" binding:"required,oneof=open in_progress resolved closed"`
}

// ListTasks godoc
// @Summary 获取升级工单列表
// @Tags Tasks
// @Produce json
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(10)
// @Param status query string false "状态 (open, in_progress, resolved, closed)"
// @Success 200 {object} utils.SuccessResponse{data=utils.PagedData}
// @Router /tasks [get]
// @Security BearerAuth
func (h *TaskHandler) ListTasks(c *gin.Context) {
	var query struct {
		pageQuery
		Status string `form:"status" binding:"omitempty,oneof=open in_progress resolved closed"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.RespondValidationError(c, err.Error())
		return
	}
	page, limit := query.normalize()
	items, total, err := h.service.ListForCompany(c.Request.Context(), auth.CompanyID(c), models.TaskStatus(query.Status), page, limit)
	if err != nil {
		respondServiceError(c, err, "Failed to list tasks")
		return
	}
	utils.RespondSuccess(c, http.StatusOK, utils.PagedData{Items: items, Pagination: utils.NewPagination(total, page, limit)}, "")
}

// UpdateTaskStatus godoc
// @Summary 更新工单状态
// @Tags Tasks
// @Accept json
// @Produce json
// @Param id path string true "工单 ID"
// @Param payload body UpdateTaskStatusPayload true "新状态"
// @Success 200 {object} utils.SuccessResponse{data=models.Task}
// @Failure 404 {object} utils.APIErrorResponse "工单不存在"
// @Router /tasks/{id}/status [put]
// @Security BearerAuth
func (h *TaskHandler) UpdateTaskStatus(c *gin.Context) {
	var payload UpdateTaskStatusPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.RespondValidationError(c, err.Error())
		return
	}
	task, err := h.service.UpdateStatus(c.Request.Context(), auth.CompanyID(c), c.Param("id"), payload.Status)
	if err != nil {
		respondServiceError(c, err, "Failed to update task")
		return
	}
	utils.RespondSuccess(c, http.StatusOK, task, "Task updated")
}
