package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/3Eeeecho/go-drive/internal/middlewares"
	"github.com/3Eeeecho/go-drive/internal/models"
	"github.com/3Eeeecho/go-drive/internal/pkg/logger"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"github.com/3Eeeecho/go-drive/internal/services/drive"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type FileHandler struct {
	svc *drive.Service
}

func NewFileHandler(svc *drive.Service) *FileHandler {
	return &FileHandler{svc: svc}
}

// UploadFile 处理 multipart 上传，表单字段: folder_id, file
// @Summary 上传文件
// @Tags 文件
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param folder_id formData string true "目标目录 ID"
// @Param file formData file true "文件内容"
// @Success 201 {object} xerr.Response "上传成功"
// @Failure 403 {object} xerr.Response "超出配额"
// @Router /api/v1/files [post]
func (h *FileHandler) UploadFile(c *gin.Context) {
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	folderID := c.PostForm("folder_id")
	if folderID == "" {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "folder_id 不能为空")
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "读取上传文件失败: "+err.Error())
		return
	}
	src, err := header.Open()
	if err != nil {
		logger.Error("UploadFile: open multipart file failed", zap.String("name", header.Filename), zap.Error(err))
		xerr.Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "读取上传文件失败")
		return
	}
	defer src.Close()

	file, err := h.svc.UploadFile(c.Request.Context(), p, drive.UploadInput{
		FolderID: folderID,
		Name:     header.Filename,
		Reader:   src,
		Size:     header.Size,
		MimeType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		respondError(c, "UploadFile", err)
		return
	}
	xerr.Success(c, http.StatusCreated, "文件上传成功", file)
}

// GetFile 返回文件元数据，回收站中的文件也可以读取
// @Summary 获取文件
// @Tags 文件
// @Produce json
// @Security BearerAuth
// @Param id path string true "文件 ID"
// @Success 200 {object} xerr.Response "文件"
// @Failure 404 {object} xerr.Response "文件不存在"
// @Router /api/v1/files/{id} [get]
func (h *FileHandler) GetFile(c *gin.Context) {
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	file, err := h.svc.GetFile(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		respondError(c, "GetFile", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取文件成功", file)
}

// DownloadFile 流式返回文件内容
func (h *FileHandler) DownloadFile(c *gin.Context) {
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	file, obj, err := h.svc.DownloadFile(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		respondError(c, "DownloadFile", err)
		return
	}
	defer obj.Reader.Close()

	attachment(c, file.FullName)
	contentType := file.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Length", strconv.FormatInt(file.Size, 10))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, obj.Reader); err != nil {
		// 响应头已发出，只能记录
		logger.Error("DownloadFile: stream interrupted", zap.String("fileID", file.ID), zap.Error(err))
	}
}

func (h *FileHandler) RenameFile(c *gin.Context) {
	var req NameRequest
	if !bindJSON(c, &req) {
		return
	}
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	file, err := h.svc.RenameFile(c.Request.Context(), p, c.Param("id"), req.Name)
	if err != nil {
		respondError(c, "RenameFile", err)
		return
	}
	xerr.Success(c, http.StatusOK, "文件重命名成功", file)
}

func (h *FileHandler) MoveFile(c *gin.Context) {
	var req MoveRequest
	if !bindJSON(c, &req) {
		return
	}
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	file, err := h.svc.MoveFile(c.Request.Context(), p, c.Param("id"), req.DestID)
	if err != nil {
		respondError(c, "MoveFile", err)
		return
	}
	xerr.Success(c, http.StatusOK, "文件移动成功", file)
}

func (h *FileHandler) TrashFile(c *gin.Context) {
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	if err := h.svc.TrashFile(c.Request.Context(), p, c.Param("id")); err != nil {
		respondError(c, "TrashFile", err)
		return
	}
	xerr.Success(c, http.StatusOK, "文件已移入回收站", nil)
}

func (h *FileHandler) RestoreFile(c *gin.Context) {
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	if err := h.svc.RestoreFile(c.Request.Context(), p, c.Param("id")); err != nil {
		respondError(c, "RestoreFile", err)
		return
	}
	xerr.Success(c, http.StatusOK, "文件已恢复", nil)
}

func (h *FileHandler) PermanentDeleteFile(c *gin.Context) {
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	if err := h.svc.PermanentDeleteFile(c.Request.Context(), p, c.Param("id")); err != nil {
		respondError(c, "PermanentDeleteFile", err)
		return
	}
	xerr.Success(c, http.StatusOK, "文件已彻底删除", nil)
}

func (h *FileHandler) GetFilePath(c *gin.Context) {
	p, ok := middlewares.GetPrincipal(c)
	if !ok {
		return
	}
	nodePath, err := h.svc.GetPath(c.Request.Context(), p, models.KindFile, c.Param("id"))
	if err != nil {
		respondError(c, "GetFilePath", err)
		return
	}
	xerr.Success(c, http.StatusOK, "获取路径成功", gin.H{"path": nodePath})
}
