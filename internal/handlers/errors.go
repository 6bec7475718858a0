package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/feedback_management/internal/services"
	"github.com/feedback_management/pkg/utils"
)

// respondServiceError 把服务层的哨兵错误映射为 HTTP 状态码
func respondServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrCompanyNotFound):
		utils.RespondNotFoundError(c, "Company")
	case errors.Is(err, services.ErrCustomerNotFound):
		utils.RespondNotFoundError(c, "Customer")
	case errors.Is(err, services.ErrFeedbackNotFound):
		utils.RespondNotFoundError(c, "Feedback")
	case errors.Is(err, services.ErrRequestNotFound):
		utils.RespondNotFoundError(c, "Feedback request")
	case errors.Is(err, services.ErrReplyNotFound):
		utils.RespondNotFoundError(c, "Reply")
	case errors.Is(err, services.ErrTaskNotFound):
		utils.RespondNotFoundError(c, "Task")
	case errors.Is(err, services.ErrTokenInvalid):
		utils.RespondAPIError(c, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, services.ErrAlreadySubmitted),
		errors.Is(err, services.ErrReplyNotPending),
		errors.Is(err, services.ErrReplyExists):
		utils.RespondConflictError(c, err.Error())
	case errors.Is(err, services.ErrInvalidRating),
		errors.Is(err, services.ErrEmptySubmission),
		errors.Is(err, services.ErrEmptyReply),
		errors.Is(err, services.ErrInvalidChannel),
		errors.Is(err, services.ErrMissingContact),
		errors.Is(err, services.ErrInvalidPolicy):
		utils.RespondValidationError(c, err.Error())
	case errors.Is(err, services.ErrNoExternalAccount):
		utils.RespondAPIError(c, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, services.ErrDeliveryFailed):
		utils.RespondAPIError(c, http.StatusBadGateway, err.Error(), nil)
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error(fallback)
		utils.RespondInternalServerError(c, fallback, err.Error())
	}
}

// pageQuery 是列表接口通用的分页参数
type pageQuery struct {
	Page  int `form:"page,default=1"`
	Limit int `form:"limit,default=10"`
}

func (q pageQuery) normalize() (int, int) {
	return utils.NormalizePage(q.Page, q.Limit, 100)
}
