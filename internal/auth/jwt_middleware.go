package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/feedback_management/internal/models"
)

// Gin 上下文中的键
const (
	ContextUserID          = "userID"
	ContextUsername        = "username"
	ContextRole            = "role"
	ContextCompanyID       = "companyID"
	ContextIsPlatformAdmin = "isPlatformAdmin"
	ContextJTI             = "jti"
	ContextExpiresAt       = "exp"
)

// Claims 定义了JWT中存储的自定义声明。
// JTI (ID) 会通过内嵌的 jwt.RegisteredClaims 提供
type Claims struct {
	UserID          int64  `json:"user_id"`
	Username        string `json:"username"`
	Role            string `json:"role"`
	CompanyID       string `json:"company_id"`
	IsPlatformAdmin bool   `json:"is_platform_admin,omitempty"`
	jwt.RegisteredClaims
}

// JWTMiddleware 是一个Gin中间件，用于验证JWT。
// 它从 Authorization 请求头中提取 Bearer Token，
// 并使用 `golang-jwt/jwt/v5` 库进行验证。
func JWTMiddleware(secret string, denylist Denylist) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		claims, err := ParseToken(parts[1], secret)
		if err != nil {
			// 使用 errors.Is 来判断特定的JWT错误类型
			var msg string
			switch {
			case errors.Is(err, jwt.ErrTokenMalformed):
				msg = "Token is malformed"
			case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
				msg = "Token is expired or not valid yet"
			case errors.Is(err, jwt.ErrTokenSignatureInvalid):
				msg = "Invalid token signature"
			default:
				msg = "Invalid token: " + err.Error()
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		// 检查JTI是否存在
		if claims.ID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token missing JTI (JWT ID)"})
			return
		}

		// 检查Token是否已在拒绝列表
		if denylist != nil {
			revoked, err := denylist.Contains(c.Request.Context(), claims.ID)
			if err != nil {
				log.WithError(err).Error("token denylist lookup failed")
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Unable to verify token"})
				return
			}
			if revoked {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token has been invalidated (logged out)"})
				return
			}
		}

		// 将声明和关键信息存储在Gin上下文中，以便后续处理程序使用
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextCompanyID, claims.CompanyID)
		c.Set(ContextIsPlatformAdmin, claims.IsPlatformAdmin)
		c.Set(ContextJTI, claims.ID)
		if claims.ExpiresAt != nil {
			c.Set(ContextExpiresAt, claims.ExpiresAt.Time)
		}

		c.Next()
	}
}

// ParseToken 校验签名和有效期并返回声明
func ParseToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// 确保token的签名方法是我们期望的 HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is invalid")
	}
	return claims, nil
}

// IssueToken 为用户签发一个带 JTI 的 HS256 Token
func IssueToken(user *models.User, secret string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		UserID:          user.ID,
		Username:        user.Username,
		Role:            user.Role,
		CompanyID:       user.CompanyID,
		IsPlatformAdmin: user.IsPlatformAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.Username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "feedback_management",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// CompanyID 返回当前请求所属公司
func CompanyID(c *gin.Context) string {
	return c.GetString(ContextCompanyID)
}

// UserID 返回当前登录用户的 ID
func UserID(c *gin.Context) int64 {
	return c.GetInt64(ContextUserID)
}
