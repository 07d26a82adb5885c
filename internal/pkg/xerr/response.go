package xerr

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 是通用 JSON 响应结构
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func JSONResponse(c *gin.Context, httpStatus int, code int, message string, data any) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func Success(c *gin.Context, httpStatus int, message string, data any) {
	JSONResponse(c, httpStatus, SuccessCode, message, data)
}

func Error(c *gin.Context, httpStatus int, code int, message string) {
	JSONResponse(c, httpStatus, code, message, nil)
}

// RespondError 按错误分类输出响应；失败节点 id 放进 data
func RespondError(c *gin.Context, err error) {
	code, status := CodeOf(err)
	var data any
	if nodeID, ok := FailedNode(err); ok {
		data = gin.H{"failed_node_id": nodeID}
	}
	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		message = ErrInternalServer.Error()
	}
	JSONResponse(c, status, code, message, data)
}

// AbortWithError 终止请求并发送错误响应
func AbortWithError(c *gin.Context, httpStatus int, code int, message string) {
	Error(c, httpStatus, code, message)
	c.Abort()
}
