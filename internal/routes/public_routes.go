package routes

import (
	"github.com/gin-gonic/gin"
)

// SetupPublicRoutes 设置客户端无需登录的路由
func SetupPublicRoutes(apiV1 *gin.RouterGroup, h Handlers) {
	public := apiV1.Group("/public")
	{
		public.GET("/feedback/:token", h.Public.GetFeedbackForm)
		public.POST("/feedback/:token", h.Public.SubmitFeedback)
		public.GET("/companies/:companyId/summary", h.Public.GetPublicSummary)
	}
}
