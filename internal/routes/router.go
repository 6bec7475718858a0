package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/feedback_management/internal/auth"
	"github.com/feedback_management/internal/handlers"
)

// Handlers 汇总所有路由需要的 handler 和中间件依赖
type Handlers struct {
	JWTSecret string
	Denylist  auth.Denylist

	Auth     *handlers.AuthHandler
	Public   *handlers.PublicHandler
	Feedback *handlers.FeedbackHandler
	Requests *handlers.RequestHandler
	Policy   *handlers.PolicyHandler
	Tasks    *handlers.TaskHandler
	Reviews  *handlers.ReviewHandler
}

// SetupRoutes 初始化所有路由
func SetupRoutes(router *gin.Engine, h Handlers) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiV1 := router.Group("/api/v1")
	SetupAuthRoutes(apiV1, h)
	SetupPublicRoutes(apiV1, h)
	SetupFeedbackRoutes(apiV1, h)
}
