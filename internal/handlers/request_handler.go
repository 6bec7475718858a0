package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feedback_management/internal/auth"
	"github.com/feedback_management/internal/services"
	"github.com/feedback_management/pkg/utils"
)

// RequestHandler 封装了发送反馈请求的接口
type RequestHandler struct {
	service services.FeedbackRequestService
}

// NewRequestHandler 创建一个新的 RequestHandler 实例
func NewRequestHandler(service services.FeedbackRequestService) *RequestHandler {
	return &RequestHandler{service: service}
}

// SendRequest godoc
// @Summary 向客户发送反馈请求
// @Description 通过 email、sms 发送反馈链接，或为 qr 渠道只生成链接
// @Tags Requests
// @Accept json
// @Produce json
// @Param request body services.SendRequestInput true "客户和渠道"
// @Success 201 {object} utils.SuccessResponse{data=services.SendRequestResult}
// @Failure 400 {object} utils.APIErrorResponse "渠道无效或客户缺少联系方式"
// @Failure 404 {object} utils.APIErrorResponse "客户不存在"
// @Failure 502 {object} utils.APIErrorResponse "投递失败"
// @Router /requests [post]
// @Security BearerAuth
func (h *RequestHandler) SendRequest(c *gin.Context) {
	var input services.SendRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondValidationError(c, err.Error())
		return
	}
	input.CompanyID = auth.CompanyID(c)

	result, err := h.service.Send(c.Request.Context(), input)
	if err != nil {
		if errors.Is(err, services.ErrDeliveryFailed) && result != nil {
			utils.RespondAPIError(c, http.StatusBadGateway, err.Error(), result)
			return
		}
		respondServiceError(c, err, "Failed to send feedback request")
		return
	}
	utils.RespondSuccess(c, http.StatusCreated, result, "Feedback request sent")
}

// ListRequests godoc
// @Summary 获取反馈请求列表
// @Tags Requests
// @Produce json
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(10)
// @Success 200 {object} utils.SuccessResponse{data=utils.PagedData}
// @Router /requests [get]
// @Security BearerAuth
func (h *RequestHandler) ListRequests(c *gin.Context) {
	var query pageQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.RespondValidationError(c, err.Error())
		return
	}
	page, limit := query.normalize()
	items, total, err := h.service.ListForCompany(c.Request.Context(), auth.CompanyID(c), page, limit)
	if err != nil {
		respondServiceError(c, err, "Failed to list feedback requests")
		return
	}
	utils.RespondSuccess(c, http.StatusOK, utils.PagedData{Items: items, Pagination: utils.NewPagination(total, page, limit)}, "")
}
