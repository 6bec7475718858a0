package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/feedback_management/internal/auth"
	"github.com/feedback_management/internal/repositories"
	"github.com/feedback_management/pkg/utils"
)

const tokenTTL = 24 * time.Hour

// AuthHandler 封装了登录和登出
type AuthHandler struct {
	users    repositories.UserRepository
	secret   string
	denylist auth.Denylist
}

// NewAuthHandler 创建一个新的 AuthHandler 实例
func NewAuthHandler(users repositories.UserRepository, secret string, denylist auth.Denylist) *AuthHandler {
	return &AuthHandler{users: users, secret: secret, denylist: denylist}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      UserInfo  `json:"user"`
}

type UserInfo struct {
	ID              int64  `json:"id"`
	Username        string `json:"username"`
	Role            string `json:"role"`
	CompanyID       string `json:"companyId"`
	IsPlatformAdmin bool   `json:"isPlatformAdmin"`
}

// Login godoc
// @Summary 运营人员登录
// @Description 验证用户凭证并返回 JWT
// @Tags auth
// @Accept  json
// @Produce  json
// @Param credentials body LoginRequest true "登录凭证"
// @Success 200 {object} utils.SuccessResponse{data=LoginResponse} "登录成功，返回 Token 和用户信息"
// @Failure 400 {object} utils.APIErrorResponse "请求参数错误"
// @Failure 401 {object} utils.APIErrorResponse "无效的用户名或密码"
// @Failure 500 {object} utils.APIErrorResponse "无法生成Token"
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationError(c, err.Error())
		return
	}

	user, err := h.users.GetByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if !errors.Is(err, repositories.ErrRecordNotFound) {
			log.WithError(err).Error("login lookup failed")
		}
		utils.RespondUnauthorizedError(c, "Invalid username or password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		utils.RespondUnauthorizedError(c, "Invalid username or password")
		return
	}

	token, expiresAt, err := auth.IssueToken(user, h.secret, tokenTTL)
	if err != nil {
		utils.RespondInternalServerError(c, "Unable to issue token", err.Error())
		return
	}

	utils.RespondSuccess(c, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User: UserInfo{
			ID:              user.ID,
			Username:        user.Username,
			Role:            user.Role,
			CompanyID:       user.CompanyID,
			IsPlatformAdmin: user.IsPlatformAdmin,
		},
	}, "Login successful")
}

// Logout godoc
// @Summary User logout
// @Description Logs out the current user by invalidating their token.
// @Tags auth
// @Security BearerAuth
// @Produce  json
// @Success 200 {object} utils.SuccessResponse "成功登出"
// @Failure 400 {object} utils.APIErrorResponse "上下文中缺少JTI或EXP"
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	jti := c.GetString(auth.ContextJTI)
	expVal, expExists := c.Get(auth.ContextExpiresAt)
	exp, okEXP := expVal.(time.Time)

	if jti == "" {
		utils.RespondAPIError(c, http.StatusBadRequest, "Logout context error: Invalid JTI", nil)
		return
	}
	if !expExists || !okEXP {
		utils.RespondAPIError(c, http.StatusBadRequest, "Logout context error: Invalid EXP", nil)
		return
	}

	if err := h.denylist.Add(c.Request.Context(), jti, exp); err != nil {
		utils.RespondInternalServerError(c, "Unable to revoke token", err.Error())
		return
	}
	utils.RespondSuccess(c, http.StatusOK, nil, "Logged out")
}
