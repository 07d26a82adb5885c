package handlers

import (
	"net/http"
	"strconv"

	"github.com/3Eeeecho/go-drive/internal/middlewares"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"github.com/3Eeeecho/go-drive/internal/services/drive"
	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	svc *drive.Service
}

func NewUserHandler(svc *drive.Service) *UserHandler {
	return &UserHandler{svc: svc}
}

type ProvisionRequest struct {
	AllocatedBytes int64 `json:"allocated_bytes"`
}

// ProvisionDrive 为 token 中的用户名开通网盘，重复调用返回已有账户
// @Summary 开通网盘
// @Tags 用户
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ProvisionRequest false "分配空间，缺省使用默认值"
// @Success 200 {object} xerr.Response "开通成功"
// @Router /api/v1/users/me/drive [post]
func (h *UserHandler) ProvisionDrive(c *gin.Context) {
	var req ProvisionRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	user, err := h.svc.ProvisionUser(c.Request.Context(), middlewares.GetUsername(c), req.AllocatedBytes)
	if err != nil {
		respondError(c, "ProvisionDrive", err)
		return
	}
	xerr.Success(c, http.StatusOK, "网盘已开通", user)
}

func (h *UserHandler) GetUsage(c *gin.Context) {
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	usage, err := h.svc.Usage(c.Request.Context(), p, userID)
	if err != nil {
		respondError(c, "GetUsage", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取空间使用情况成功", usage)
}

// ListTrash 列出当前用户回收站中的目录和文件
func (h *UserHandler) ListTrash(c *gin.Context) {
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	trash, err := h.svc.ListTrash(c.Request.Context(), p)
	if err != nil {
		respondError(c, "ListTrash", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取回收站成功", trash)
}

func userIDParam(c *gin.Context) (uint64, bool) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "无效的用户 ID")
		return 0, false
	}
	return userID, true
}

// pageParams 解析 page 和 page_size，page_size 缺省时由服务层决定
func pageParams(c *gin.Context) (int, int, bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "无效的页码")
		return 0, 0, false
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "0"))
	if err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "无效的分页大小")
		return 0, 0, false
	}
	return page, pageSize, true
}

// CurrentFolder 返回当前用户的根目录
// @Summary 当前用户的根目录
// @Tags 用户
// @Produce json
// @Security BearerAuth
// @Success 200 {object} xerr.Response "根目录"
// @Failure 404 {object} xerr.Response "尚未开通网盘"
// @Router /api/v1/users/me/folder [get]
func (h *UserHandler) CurrentFolder(c *gin.Context) {
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	root, err := h.svc.CurrentRoot(c.Request.Context(), p)
	if err != nil {
		respondError(c, "CurrentFolder", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取根目录成功", root)
}

// ListOwnedFolders 分页列出某个用户拥有的目录
// @Summary 用户的全部目录
// @Tags 用户
// @Produce json
// @Security BearerAuth
// @Param id path int true "用户 ID"
// @Param page query int false "页码，从 1 开始"
// @Param page_size query int false "每页条数 10/25/50/100"
// @Success 200 {object} xerr.Response "目录分页"
// @Router /api/v1/users/{id}/folders [get]
func (h *UserHandler) ListOwnedFolders(c *gin.Context) {
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	page, pageSize, ok := pageParams(c)
	if !ok {
		return
	}
	folders, err := h.svc.ListOwnedFolders(c.Request.Context(), p, userID, page, pageSize)
	if err != nil {
		respondError(c, "ListOwnedFolders", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取目录列表成功", folders)
}

func (h *UserHandler) ListOwnedFiles(c *gin.Context) {
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	page, pageSize, ok := pageParams(c)
	if !ok {
		return
	}
	files, err := h.svc.ListOwnedFiles(c.Request.Context(), p, userID, page, pageSize)
	if err != nil {
		respondError(c, "ListOwnedFiles", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取文件列表成功", files)
}
