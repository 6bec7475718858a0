package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/feedback_management/pkg/utils"
)

// RequireRoles 只放行持有指定角色之一的用户，平台管理员总是放行
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(ContextIsPlatformAdmin) {
			c.Next()
			return
		}
		if !utils.ContainsString(roles, c.GetString(ContextRole)) {
			utils.RespondForbiddenError(c, "Insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireCompany 拒绝没有公司归属的 Token
func RequireCompany() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CompanyID(c) == "" {
			utils.RespondForbiddenError(c, "Token is not bound to a company")
			c.Abort()
			return
		}
		c.Next()
	}
}
