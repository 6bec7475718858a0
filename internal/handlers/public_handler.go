package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feedback_management/internal/services"
	"github.com/feedback_management/pkg/utils"
)

// PublicHandler 处理客户侧无需登录的接口
type PublicHandler struct {
	feedback services.FeedbackService
	requests services.FeedbackRequestService
}

// NewPublicHandler 创建一个新的 PublicHandler 实例
func NewPublicHandler(feedback services.FeedbackService, requests services.FeedbackRequestService) *PublicHandler {
	return &PublicHandler{feedback: feedback, requests: requests}
}

// GetFeedbackForm godoc
// @Summary 获取反馈页面信息
// @Description 根据请求链接中的 token 返回公司名、客户名以及是否已提交/过期
// @Tags Public
// @Produce json
// @Param token path string true "反馈请求 token"
// @Success 200 {object} utils.SuccessResponse{data=services.PublicRequestView}
// @Failure 404 {object} utils.APIErrorResponse "链接无效"
// @Router /public/feedback/{token} [get]
func (h *PublicHandler) GetFeedbackForm(c *gin.Context) {
	view, err := h.requests.GetByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondServiceError(c, err, "Failed to load feedback request")
		return
	}
	utils.RespondSuccess(c, http.StatusOK, view, "")
}

// SubmitFeedback godoc
// @Summary 提交反馈
// @Description 客户提交评分（1-5，可选）和评论；每个请求只能提交一次
// @Tags Public
// @Accept json
// @Produce json
// @Param token path string true "反馈请求 token"
// @Param feedback body services.SubmitFeedbackInput true "评分和评论"
// @Success 201 {object} utils.SuccessResponse{data=models.Feedback}
// @Failure 400 {object} utils.APIErrorResponse "评分或内容无效"
// @Failure 404 {object} utils.APIErrorResponse "链接无效或已过期"
// @Failure 409 {object} utils.APIErrorResponse "已提交过反馈"
// @Router /public/feedback/{token} [post]
func (h *PublicHandler) SubmitFeedback(c *gin.Context) {
	var input services.SubmitFeedbackInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondValidationError(c, err.Error())
		return
	}
	feedback, err := h.feedback.Submit(c.Request.Context(), c.Param("token"), input)
	if err != nil {
		respondServiceError(c, err, "Failed to submit feedback")
		return
	}
	utils.RespondSuccess(c, http.StatusCreated, feedback, "Thank you for your feedback")
}

// GetPublicSummary godoc
// @Summary 公司公开评价汇总
// @Description 只统计公开的反馈：数量、平均分、星级分布和置顶评价
// @Tags Public
// @Produce json
// @Param companyId path string true "公司 ID"
// @Success 200 {object} utils.SuccessResponse{data=models.FeedbackSummary}
// @Router /public/companies/{companyId}/summary [get]
func (h *PublicHandler) GetPublicSummary(c *gin.Context) {
	summary, err := h.feedback.PublicSummary(c.Request.Context(), c.Param("companyId"))
	if err != nil {
		respondServiceError(c, err, "Failed to build summary")
		return
	}
	utils.RespondSuccess(c, http.StatusOK, summary, "")
}
