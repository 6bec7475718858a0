package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feedback_management/internal/auth"
	"github.com/feedback_management/internal/models"
	"github.com/feedback_management/internal/repositories"
	"github.com/feedback_management/internal/services"
	"github.com/feedback_management/pkg/utils"
)

// FeedbackHandler 封装了运营侧的反馈管理接口
type FeedbackHandler struct {
	service services.FeedbackService
}

// NewFeedbackHandler 创建一个新的 FeedbackHandler 实例
func NewFeedbackHandler(service services.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{service: service}
}

type ResolveFeedbackPayload struct {
	Note *string `json:"note,omitempty" binding:"omitempty,max=2000"`
}

type VisibilityPayload struct {
	IsPublic *bool `json:"isPublic" binding:"required"`
}

type ManualReplyPayload struct {
	Content string `json:"content" binding:"required,max=5000"`
}

// ListFeedback godoc
// @Summary 获取反馈列表
// @Description 分页列出本公司的反馈，置顶优先，支持按来源、最高评分、未解决、置顶筛选
// @Tags Feedback
// @Produce json
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(10)
// @Param source query string false "来源 (manual 或 google)"
// @Param maxRating query int false "只返回评分不高于该值的反馈"
// @Param unresolved query bool false "只返回未解决的反馈"
// @Param pinned query bool false "只返回置顶的反馈"
// @Success 200 {object} utils.SuccessResponse{data=utils.PagedData}
// @Failure 400 {object} utils.APIErrorResponse "请求参数错误"
// @Failure 401 {object} utils.APIErrorResponse "未认证或 Token 无效/过期"
// @Router /feedback [get]
// @Security BearerAuth
func (h *FeedbackHandler) ListFeedback(c *gin.Context) {
	var query struct {
		pageQuery
		Source     string `form:"source" binding:"omitempty,oneof=manual google"`
		MaxRating  *int   `form:"maxRating" binding:"omitempty,min=1,max=5"`
		Unresolved bool   `form:"unresolved"`
		Pinned     bool   `form:"pinned"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.RespondValidationError(c, err.Error())
		return
	}
	page, limit := query.normalize()
	filters := repositories.FeedbackFilters{
		Source:     models.FeedbackSource(query.Source),
		MaxRating:  query.MaxRating,
		Unresolved: query.Unresolved,
		PinnedOnly: query.Pinned,
	}

	items, total, err := h.service.ListForCompany(c.Request.Context(), auth.CompanyID(c), filters, page, limit)
	if err != nil {
		respondServiceError(c, err, "Failed to list feedback")
		return
	}
	utils.RespondSuccess(c, http.StatusOK, utils.PagedData{Items: items, Pagination: utils.NewPagination(total, page, limit)}, "")
}

// GetFeedback godoc
// @Summary 获取单条反馈及其回复
// @Tags Feedback
// @Produce json
// @Param id path string true "反馈 ID"
// @Success 200 {object} utils.SuccessResponse{data=services.FeedbackDetail}
// @Failure 404 {object} utils.APIErrorResponse "反馈不存在"
// @Router /feedback/{id} [get]
// @Security BearerAuth
func (h *FeedbackHandler) GetFeedback(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), auth.CompanyID(c), c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "Failed to load feedback")
		return
	}
	utils.RespondSuccess(c, http.StatusOK, detail, "")
}

// ResolveFeedback godoc
// @Summary 标记反馈已解决
// @Tags Feedback
// @Accept json
// @Produce json
// @Param id path string true "反馈 ID"
// @Param payload body ResolveFeedbackPayload false "解决备注"
// @Success 200 {object} utils.SuccessResponse{data=models.Feedback}
// @Failure 404 {object} utils.APIErrorResponse "反馈不存在"
// @Router /feedback/{id}/resolve [post]
// @Security BearerAuth
func (h *FeedbackHandler) ResolveFeedback(c *gin.Context) {
	var payload ResolveFeedbackPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			utils.RespondValidationError(c, err.Error())
			return
		}
	}
	feedback, err := h.service.Resolve(c.Request.Context(), auth.CompanyID(c), c.Param("id"), payload.Note)
	if err != nil {
		respondServiceError(c, err, "Failed to resolve feedback")
		return
	}
	utils.RespondSuccess(c, http.StatusOK, feedback, "Feedback resolved")
}

// TogglePin godoc
// @Summary 切换反馈置顶状态
// @Tags Feedback
// @Produce json
// @Param id path string true "反馈 ID"
// @Success 200 {object} utils.SuccessResponse{data=models.Feedback}
// @Failure 404 {object} utils.APIErrorResponse "反馈不存在"
// @Router /feedback/{id}/pin [post]
// @Security BearerAuth
func (h *FeedbackHandler) TogglePin(c *gin.Context) {
	feedback, err := h.service.TogglePin(c.Request.Context(), auth.CompanyID(c), c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "Failed to toggle pin")
		return
	}
	utils.RespondSuccess(c, http.StatusOK, feedback, "")
}

// SetVisibility godoc
// @Summary 设置反馈是否公开
// @Description 只有公开的反馈会出现在公开汇总中
// @Tags Feedback
// @Accept json
// @Produce json
// @Param id path string true "反馈 ID"
// @Param payload body VisibilityPayload true "是否公开"
// @Success 200 {object} utils.SuccessResponse{data=models.Feedback}
// @Failure 404 {object} utils.APIErrorResponse "反馈不存在"
// @Router /feedback/{id}/visibility [put]
// @Security BearerAuth
func (h *FeedbackHandler) SetVisibility(c *gin.Context) {
	var payload VisibilityPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.RespondValidationError(c, err.Error())
		return
	}
	feedback, err := h.service.SetVisibility(c.Request.Context(), auth.CompanyID(c), c.Param("id"), *payload.IsPublic)
	if err != nil {
		respondServiceError(c, err, "Failed to update visibility")
		return
	}
	utils.RespondSuccess(c, http.StatusOK, feedback, "")
}

// AddReply godoc
// @Summary 添加人工回复
// @Tags Replies
// @Accept json
// @Produce json
// @Param id path string true "反馈 ID"
// @Param payload body ManualReplyPayload true "回复内容"
// @Success 201 {object} utils.SuccessResponse{data=models.FeedbackReply}
// @Failure 400 {object} utils.APIErrorResponse "回复内容为空"
// @Failure 404 {object} utils.APIErrorResponse "反馈不存在"
// @Router /feedback/{id}/replies [post]
// @Security BearerAuth
func (h *FeedbackHandler) AddReply(c *gin.Context) {
	var payload ManualReplyPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.RespondValidationError(c, err.Error())
		return
	}
	reply, err := h.service.AddManualReply(c.Request.Context(), auth.CompanyID(c), c.Param("id"), auth.UserID(c), payload.Content)
	if err != nil {
		respondServiceError(c, err, "Failed to add reply")
		return
	}
	utils.RespondSuccess(c, http.StatusCreated, reply, "Reply added")
}

// RegenerateReply godoc
// @Summary 重新生成 AI 回复
// @Description 没有 AI 回复或上次生成失败时重新入队生成任务
// @Tags Replies
// @Produce json
// @Param id path string true "反馈 ID"
// @Success 202 {object} utils.SuccessResponse
// @Failure 404 {object} utils.APIErrorResponse "反馈不存在"
// @Failure 409 {object} utils.APIErrorResponse "已有 AI 回复"
// @Router /feedback/{id}/replies/regenerate [post]
// @Security BearerAuth
func (h *FeedbackHandler) RegenerateReply(c *gin.Context) {
	if err := h.service.RegenerateReply(c.Request.Context(), auth.CompanyID(c), c.Param("id")); err != nil {
		respondServiceError(c, err, "Failed to schedule reply generation")
		return
	}
	utils.RespondSuccess(c, http.StatusAccepted, nil, "Reply generation scheduled")
}

// SendReply godoc
// @Summary 发送待处理的 AI 回复
// @Description 把 pending 状态的回复标记为 sent
// @Tags Replies
// @Produce json
// @Param replyId path string true "回复 ID"
// @Success 200 {object} utils.SuccessResponse{data=models.FeedbackReply}
// @Failure 404 {object} utils.APIErrorResponse "回复不存在"
// @Failure 409 {object} utils.APIErrorResponse "回复不是 pending 状态"
// @Router /replies/{replyId}/send [post]
// @Security BearerAuth
func (h *FeedbackHandler) SendReply(c *gin.Context) {
	reply, err := h.service.SendReply(c.Request.Context(), auth.CompanyID(c), c.Param("replyId"))
	if err != nil {
		respondServiceError(c, err, "Failed to send reply")
		return
	}
	utils.RespondSuccess(c, http.StatusOK, reply, "Reply sent")
}
