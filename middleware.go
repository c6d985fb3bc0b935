package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// errorHandlingMiddleware 处理 handler 通过 c.Error 挂上但没有写出响应的错误
func errorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last()
		logrus.Errorf("未处理的错误 %s %s: %v", c.Request.Method, c.Request.URL.Path, err.Err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "服务器内部错误",
			Code:    "INTERNAL_ERROR",
			Details: err.Error(),
		})
	}
}

// corsMiddleware 允许浏览器跨域调用 API
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Session-Id, Mcp-Session-Id")
		h.Set("Access-Control-Expose-Headers", "Mcp-Session-Id")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
