package handlers

import (
	"net/http"
	"os"
	"path"
	"strconv"

	"github.com/3Eeeecho/go-drive/internal/middlewares"
	"github.com/3Eeeecho/go-drive/internal/models"
	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"github.com/3Eeeecho/go-drive/internal/services/drive"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type FolderHandler struct {
	svc *drive.Service
}

func NewFolderHandler(svc *drive.Service) *FolderHandler {
	return &FolderHandler{svc: svc}
}

type CreateFolderRequest struct {
	ParentID string `json:"parent_id" binding:"required"`
	Name     string `json:"name" binding:"required"`
}

// CreateFolder 在指定目录下新建子目录
// @Summary 新建目录
// @Tags 目录
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateFolderRequest true "父目录和名称"
// @Success 201 {object} xerr.Response "目录创建成功"
// @Failure 409 {object} xerr.Response "同名目录已存在"
// @Router /api/v1/folders [post]
func (h *FolderHandler) CreateFolder(c *gin.Context) {
	var req CreateFolderRequest
	if !bindJSON(c, &req) {
		return
	}
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	folder, err := h.svc.CreateFolder(c.Request.Context(), p, req.ParentID, req.Name)
	if err != nil {
		respondError(c, "CreateFolder", err)
		return
	}
	xerr.Success(c, http.StatusCreated, "目录创建成功", folder)
}

// ListFolder 返回目录及其直接子节点，include_trashed=true 时包含回收站中的子节点
// @Summary 列出目录内容
// @Tags 目录
// @Produce json
// @Security BearerAuth
// @Param id path string true "目录 ID"
// @Param include_trashed query bool false "是否包含回收站中的子节点"
// @Success 200 {object} xerr.Response "目录内容"
// @Router /api/v1/folders/{id} [get]
func (h *FolderHandler) ListFolder(c *gin.Context) {
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	includeTrashed, _ := strconv.ParseBool(c.DefaultQuery("include_trashed", "false"))
	listing, err := h.svc.ListFolder(c.Request.Context(), p, c.Param("id"), includeTrashed)
	if err != nil {
		respondError(c, "ListFolder", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取目录内容成功", listing)
}

func (h *FolderHandler) RenameFolder(c *gin.Context) {
	var req NameRequest
	if !bindJSON(c, &req) {
		return
	}
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	folder, err := h.svc.RenameFolder(c.Request.Context(), p, c.Param("id"), req.Name)
	if err != nil {
		respondError(c, "RenameFolder", err)
		return
	}
	xerr.Success(c, http.StatusOK, "目录重命名成功", folder)
}

func (h *FolderHandler) MoveFolder(c *gin.Context) {
	var req MoveRequest
	if !bindJSON(c, &req) {
		return
	}
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	folder, err := h.svc.MoveFolder(c.Request.Context(), p, c.Param("id"), req.DestID)
	if err != nil {
		respondError(c, "MoveFolder", err)
		return
	}
	xerr.Success(c, http.StatusOK, "目录移动成功", folder)
}

func (h *FolderHandler) TrashFolder(c *gin.Context) {
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	if err := h.svc.TrashFolder(c.Request.Context(), p, c.Param("id")); err != nil {
		respondError(c, "TrashFolder", err)
		return
	}
	xerr.Success(c, http.StatusOK, "目录已移入回收站", nil)
}

func (h *FolderHandler) RestoreFolder(c *gin.Context) {
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	if err := h.svc.RestoreFolder(c.Request.Context(), p, c.Param("id")); err != nil {
		respondError(c, "RestoreFolder", err)
		return
	}
	xerr.Success(c, http.StatusOK, "目录已恢复", nil)
}

// PermanentDeleteFolder 彻底删除回收站中的目录；失败时 data.failed_node_id 指出失败的节点
// @Summary 彻底删除目录
// @Tags 目录
// @Produce json
// @Security BearerAuth
// @Param id path string true "目录 ID"
// @Success 200 {object} xerr.Response "目录已彻底删除"
// @Failure 409 {object} xerr.Response "目录不在回收站中"
// @Router /api/v1/folders/{id} [delete]
func (h *FolderHandler) PermanentDeleteFolder(c *gin.Context) {
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	if err := h.svc.PermanentDeleteFolder(c.Request.Context(), p, c.Param("id")); err != nil {
		respondError(c, "PermanentDeleteFolder", err)
		return
	}
	xerr.Success(c, http.StatusOK, "目录已彻底删除", nil)
}

// DownloadFolder 把目录打包成 zip 发送，发送完成后删除临时文件
func (h *FolderHandler) DownloadFolder(c *gin.Context) {
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	folderID := c.Param("id")
	archivePath, err := h.svc.PackageFolder(c.Request.Context(), p, folderID)
	if err != nil {
		respondError(c, "DownloadFolder", err)
		return
	}
	defer func() {
		if err := os.Remove(archivePath); err != nil {
			logger.Warn("DownloadFolder: failed to remove archive", zap.String("archive", archivePath), zap.Error(err))
		}
	}()

	name := "archive"
	if folderPath, err := h.svc.GetPath(c.Request.Context(), p, models.KindFolder, folderID); err == nil {
		name = path.Base(folderPath)
	}
	c.FileAttachment(archivePath, name+".zip")
}

func (h *FolderHandler) GetFolderPath(c *gin.Context) {
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	nodePath, err := h.svc.GetPath(c.Request.Context(), p, models.KindFolder, c.Param("id"))
	if err != nil {
		respondError(c, "GetFolderPath", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取路径成功", gin.H{"path": nodePath})
}

