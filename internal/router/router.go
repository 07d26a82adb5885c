package router

import (
	"net/http"

	_ "github.com/3Eeeecho/go-drive/docs"
	"github.com/3Eeeecho/go-drive/internal/config"
	"github.com/3Eeeecho/go-drive/internal/handlers"
	"github.com/3Eeeecho/go-drive/internal/middlewares"
	"github.com/3Eeeecho/go-drive/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func InitRouter(
	folderHandler *handlers.FolderHandler,
	fileHandler *handlers.FileHandler,
	userHandler *handlers.UserHandler,
	serverHandler *handlers.ServerHandler,
	cfg *config.Config,
) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	// Health Check 路由
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := router.Group("/api/v1")
	v1.Use(middlewares.AuthMiddleware(cfg))
	{
		userGroup := v1.Group("/users")
		{
			userGroup.POST("/me/drive", userHandler.ProvisionDrive)
			userGroup.GET("/me/folder", userHandler.CurrentFolder)
			userGroup.GET("/:id/usage", userHandler.GetUsage)
			userGroup.GET("/:id/folders", userHandler.ListOwnedFolders)
			userGroup.GET("/:id/files", userHandler.ListOwnedFiles)
		}

		v1.GET("/trash", userHandler.ListTrash)
		v1.GET("/server/stats", serverHandler.Stats)

		folderGroup := v1.Group("/folders")
		{
			folderGroup.POST("", folderHandler.CreateFolder)
			folderGroup.GET("/:id", folderHandler.ListFolder)
			folderGroup.GET("/:id/path", folderHandler.GetFolderPath)
			folderGroup.GET("/:id/archive", folderHandler.DownloadFolder)
			folderGroup.PUT("/:id/name", folderHandler.RenameFolder)
			folderGroup.PUT("/:id/parent", folderHandler.MoveFolder)
			folderGroup.POST("/:id/trash", folderHandler.TrashFolder)
			folderGroup.POST("/:id/restore", folderHandler.RestoreFolder)
			folderGroup.DELETE("/:id", folderHandler.PermanentDeleteFolder)
		}

		fileGroup := v1.Group("/files")
		{
			fileGroup.POST("", fileHandler.UploadFile)
			fileGroup.GET("/:id", fileHandler.GetFile)
			fileGroup.GET("/:id/content", fileHandler.DownloadFile)
			fileGroup.GET("/:id/path", fileHandler.GetFilePath)
			fileGroup.PUT("/:id/name", fileHandler.RenameFile)
			fileGroup.PUT("/:id/parent", fileHandler.MoveFile)
			fileGroup.POST("/:id/trash", fileHandler.TrashFile)
			fileGroup.POST("/:id/restore", fileHandler.RestoreFile)
			fileGroup.DELETE("/:id", fileHandler.PermanentDeleteFile)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		xerr.Error(c, http.StatusNotFound, xerr.NotFoundCode, "Route not found")
	})

	return router
}
