package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feedback_management/internal/auth"
	"github.com/feedback_management/internal/models"
	"github.com/feedback_management/internal/services"
	"github.com/feedback_management/pkg/utils"
)

// PolicyHandler 封装了回复策略接口
type PolicyHandler struct {
	service services.ResponsePolicyService
}

// NewPolicyHandler 创建一个新的 PolicyHandler 实例
func NewPolicyHandler(service services.ResponsePolicyService) *PolicyHandler {
	return &PolicyHandler{service: service}
}

// GetPolicy godoc
// @Summary 获取回复策略
// @Description 首次访问时以默认值创建（专业语气、自动语言、自动回复开启、阈值 2、升级给 manager）
// @Tags Policy
// @Produce json
// @Success 200 {object} utils.SuccessResponse{data=models.ResponsePolicy}
// @Router /policy [get]
// @Security BearerAuth
func (h *PolicyHandler) GetPolicy(c *gin.Context) {
	policy, err := h.service.Get(c.Request.Context(), auth.CompanyID(c))
	if err != nil {
		respondServiceError(c, err, "Failed to load response policy")
		return
	}
	utils.RespondSuccess(c, http.StatusOK, policy, "")
}

// UpdatePolicy godoc
// @Summary 更新回复策略
// @Tags Policy
// @Accept json
// @Produce json
// @Param policy body models.UpdateResponsePolicyPayload true "需要更新的字段"
// @Success 200 {object} utils.SuccessResponse{data=models.ResponsePolicy}
// @Failure 400 {object} utils.APIErrorResponse "参数无效"
// @Router /policy [put]
// @Security BearerAuth
func (h *PolicyHandler) UpdatePolicy(c *gin.Context) {
	var payload models.UpdateResponsePolicyPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.RespondValidationError(c, err.Error())
		return
	}
	policy, err := h.service.Update(c.Request.Context(), auth.CompanyID(c), &payload)
	if err != nil {
		respondServiceError(c, err, "Failed to update response policy")
		return
	}
	utils.RespondSuccess(c, http.StatusOK, policy, "Response policy updated")
}
