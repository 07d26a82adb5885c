package middlewares

import (
	"net/http"
	"strings"

	"github.com/3Eeeecho/go-drive/internal/config"
	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/3Eeeecho/go-drive/internal/pkg/utils"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"github.com/3Eeeecho/go-drive/internal/services/drive"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ctxPrincipal = "principal"
	ctxUsername  = "username"
)

// AuthMiddleware 校验外部签发的 token，并把调用方身份放进上下文
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 从请求头获取 Token
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			xerr.AbortWithError(c, http.StatusUnauthorized, xerr.UnauthorizedCode, "Authorization header is required")
			return
		}

		// Token 格式通常是 "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			xerr.AbortWithError(c, http.StatusUnauthorized, xerr.UnauthorizedCode, "Invalid Authorization header format")
			return
		}

		// 2. 解析和验证 Token
		claims, err := utils.ParseToken(parts[1], cfg.JWT.SecretKey, cfg.JWT.Issuer)
		if err != nil {
			logger.Debug("AuthMiddleware: token rejected", zap.Error(err))
			xerr.AbortWithError(c, http.StatusUnauthorized, xerr.UnauthorizedCode, "Invalid or expired token")
			return
		}

		// 3. 将调用方存储到 Gin Context 中，以便后续 Handler 使用
		c.Set(ctxPrincipal, drive.NewPrincipal(claims.UserID, claims.Capabilities...))
		c.Set(ctxUsername, claims.Username)
		c.Next()
	}
}

// GetPrincipal 从 Gin 上下文中取出调用方；缺失时中止请求
func GetPrincipal(c *gin.Context) (drive.Principal, bool) {
	v, exists := c.Get(ctxPrincipal)
	p, ok := v.(drive.Principal)
	if !exists || !ok {
		xerr.AbortWithError(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "Principal not found in context")
		return drive.Principal{}, false
	}
	return p, true
}

func GetUsername(c *gin.Context) string {
	return c.GetString(ctxUsername)
}
