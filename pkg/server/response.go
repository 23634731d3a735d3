package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/scatter/pkg/errors"
	"github.com/tokmz/scatter/pkg/tracing"
)

// Response 统一响应结构
type Response struct {
	Code    int    `json:"code"`               // 业务状态码
	Data    any    `json:"data"`               // 响应数据
	Message string `json:"message"`            // 响应消息
	TraceID string `json:"trace_id,omitempty"` // 追踪ID
}

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Data:    data,
		Message: "success",
		TraceID: tracing.TraceID(c.Request.Context()),
	})
}

func fail(c *gin.Context, err *errors.Error) {
	c.AbortWithStatusJSON(err.HttpCode, Response{
		Code:    err.Code,
		Message: err.Message,
		TraceID: tracing.TraceID(c.Request.Context()),
	})
}
