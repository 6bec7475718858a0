package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feedback_management/internal/auth"
)

// SetupAuthRoutes 设置认证相关路由
func SetupAuthRoutes(apiV1 *gin.RouterGroup, h Handlers) {
	// 公共认证路由组 (登录)
	publicAuthGroup := apiV1.Group("/auth")
	{
		// POST /api/v1/auth/login
		publicAuthGroup.POST("/login", h.Auth.Login)
	}

	// 受保护的认证路由组 (登出)
	protectedAuthGroup := apiV1.Group("/auth")
	protectedAuthGroup.Use(auth.JWTMiddleware(h.JWTSecret, h.Denylist))
	{
		// POST /api/v1/auth/logout
		protectedAuthGroup.POST("/logout", h.Auth.Logout)
	}
}
