package handlers

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type NameRequest struct {
	Name string `json:"name" binding:"required"`
}

type MoveRequest struct {
	DestID string `json:"dest_id" binding:"required"`
}

// respondError 统一记录并输出服务层错误
func respondError(c *gin.Context, op string, err error) {
	_, status := xerr.CodeOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error(op+": request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		logger.Debug(op+": request rejected", zap.String("path", c.FullPath()), zap.Error(err))
	}
	xerr.RespondError(c, err)
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return false
	}
	return true
}

func attachment(c *gin.Context, fileName string) {
	encoded := url.PathEscape(fileName)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, encoded, encoded))
}
