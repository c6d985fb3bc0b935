package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// setupRoutes 设置路由配置
func setupRoutes(appServer *AppServer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	router.Use(errorHandlingMiddleware())
	router.Use(corsMiddleware())

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(appServer.metrics.Handler()))

	// MCP 端点，每个会话一个独立的 Server 实例
	mcpHandler := mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server {
			// 客户端可以在 Header 中提供 X-Session-Id，否则按远程地址区分
			sessionID := r.Header.Get("X-Session-Id")
			if sessionID == "" {
				sessionID = r.RemoteAddr
			}
			return appServer.sessionManager.GetOrCreateSession(sessionID)
		},
		&mcp.StreamableHTTPOptions{
			JSONResponse: true,
		},
	)
	router.POST("/mcp", gin.WrapH(mcpHandler))
	router.POST("/mcp/*path", gin.WrapH(mcpHandler))

	api := router.Group("/api/v1")
	{
		api.POST("/generate", appServer.generateHandler)
		api.POST("/generate/async", appServer.generateAsyncHandler)
	}

	return router
}
