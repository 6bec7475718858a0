package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feedback_management/internal/auth"
	"github.com/feedback_management/internal/models"
)

// SetupFeedbackRoutes 设置运营后台路由，所有接口都需要绑定公司的 JWT
func SetupFeedbackRoutes(apiV1 *gin.RouterGroup, h Handlers) {
	secured := apiV1.Group("")
	secured.Use(auth.JWTMiddleware(h.JWTSecret, h.Denylist), auth.RequireCompany())

	feedback := secured.Group("/feedback")
	{
		feedback.GET("", h.Feedback.ListFeedback)
		feedback.GET("/:id", h.Feedback.GetFeedback)
		feedback.POST("/:id/resolve", h.Feedback.ResolveFeedback)
		feedback.POST("/:id/pin", h.Feedback.TogglePin)
		feedback.PUT("/:id/visibility", h.Feedback.SetVisibility)
		feedback.POST("/:id/replies", h.Feedback.AddReply)
		feedback.POST("/:id/replies/regenerate", h.Feedback.RegenerateReply)
	}
	secured.POST("/replies/:replyId/send", h.Feedback.SendReply)

	requests := secured.Group("/requests")
	{
		requests.GET("", h.Requests.ListRequests)
		requests.POST("", h.Requests.SendRequest)
	}

	policy := secured.Group("/policy")
	{
		policy.GET("", h.Policy.GetPolicy)
		policy.PUT("", auth.RequireRoles(models.RoleOwner, models.RoleAdmin), h.Policy.UpdatePolicy)
	}

	tasks := secured.Group("/tasks")
	{
		tasks.GET("", h.Tasks.ListTasks)
		tasks.PUT("/:id/status", h.Tasks.UpdateTaskStatus)
	}

	reviews := secured.Group("/reviews")
	{
		reviews.POST("/sync", auth.RequireRoles(models.RoleOwner, models.RoleAdmin, models.RoleManager), h.Reviews.TriggerSync)
		reviews.GET("/runs", h.Reviews.ListSyncRuns)
	}
}
