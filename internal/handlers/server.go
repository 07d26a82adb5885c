package handlers

import (
	"net/http"

	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"github.com/3Eeeecho/go-drive/internal/services/drive"
	"github.com/gin-gonic/gin"
)

type ServerHandler struct {
	svc *drive.Service
}

func NewServerHandler(svc *drive.Service) *ServerHandler {
	return &ServerHandler{svc: svc}
}

// Stats 返回数据目录所在磁盘的总量、剩余和已用空间
// @Summary 服务器磁盘空间
// @Tags 服务器
// @Produce json
// @Security BearerAuth
// @Success 200 {object} xerr.Response "磁盘空间"
// @Router /api/v1/server/stats [get]
func (h *ServerHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		respondError(c, "Stats", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取服务器信息成功", stats)
}
