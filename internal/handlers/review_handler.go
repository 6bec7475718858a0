package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feedback_management/internal/auth"
	"github.com/feedback_management/internal/queue"
	"github.com/feedback_management/internal/services"
	"github.com/feedback_management/pkg/utils"
)

// ReviewHandler 封装了 Google 评价同步接口
type ReviewHandler struct {
	service  services.ReviewSyncService
	enqueuer queue.Enqueuer
}

// NewReviewHandler 创建一个新的 ReviewHandler 实例
func NewReviewHandler(service services.ReviewSyncService, enqueuer queue.Enqueuer) *ReviewHandler {
	return &ReviewHandler{service: service, enqueuer: enqueuer}
}

// TriggerSync godoc
// @Summary 触发 Google 评价同步
// @Description 入队一次同步任务，由 worker 异步执行
// @Tags Reviews
// @Produce json
// @Success 202 {object} utils.SuccessResponse
// @Router /reviews/sync [post]
// @Security BearerAuth
func (h *ReviewHandler) TriggerSync(c *gin.Context) {
	job, err := queue.NewJob(queue.TypeSyncReviews, queue.SyncReviewsPayload{CompanyID: auth.CompanyID(c)}, "")
	if err != nil {
		utils.RespondInternalServerError(c, "Failed to build sync job", err.Error())
		return
	}
	if err := h.enqueuer.Enqueue(c.Request.Context(), job); err != nil {
		utils.RespondGinError(c, http.StatusInternalServerError, err, "Failed to schedule review sync")
		return
	}
	utils.RespondSuccess(c, http.StatusAccepted, gin.H{"jobId": job.ID}, "Review sync scheduled")
}

// ListSyncRuns godoc
// @Summary 获取最近的同步记录
// @Tags Reviews
// @Produce json
// @Param limit query int false "数量" default(20)
// @Success 200 {object} utils.SuccessResponse{data=[]models.ReviewSyncRun}
// @Router /reviews/runs [get]
// @Security BearerAuth
func (h *ReviewHandler) ListSyncRuns(c *gin.Context) {
	var query struct {
		Limit int `form:"limit,default=20"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.RespondValidationError(c, err.Error())
		return
	}
	runs, err := h.service.ListRuns(c.Request.Context(), auth.CompanyID(c), query.Limit)
	if err != nil {
		respondServiceError(c, err, "Failed to list sync runs")
		return
	}
	utils.RespondSuccess(c, http.StatusOK, runs, "")
}
