package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

const (
	mcpSessionIdle      = 30 * time.Minute
	mcpSweepInterval    = 5 * time.Minute
	shutdownGracePeriod = 5 * time.Second
	runDrainPeriod      = 10 * time.Second
)

// AppServer 应用服务器结构体，封装所有服务和处理器
type AppServer struct {
	generatorService *GeneratorService
	metrics          *Metrics
	sessionManager   *SessionManager
	router           *gin.Engine
	httpServer       *http.Server
}

// NewAppServer 创建新的应用服务器实例
func NewAppServer(generatorService *GeneratorService) *AppServer {
	appServer := &AppServer{
		generatorService: generatorService,
		metrics:          generatorService.metrics,
	}

	// 每个会话的 MCP Server 都需要访问 appServer 上的处理函数
	appServer.sessionManager = NewSessionManager(func() *mcp.Server {
		return InitMCPServer(appServer)
	})
	appServer.router = setupRoutes(appServer)

	return appServer
}

// Start 启动服务器并阻塞到收到退出信号
func (s *AppServer) Start(port string) error {
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.router,
	}

	go func() {
		logrus.Infof("启动 HTTP 服务器: %s", port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Errorf("服务器启动失败: %v", err)
			os.Exit(1)
		}
	}()

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go s.sweepSessions(sweepCtx)

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Infof("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logrus.Warnf("等待连接关闭超时，强制退出: %v", err)
	} else {
		logrus.Infof("服务器已优雅关闭")
	}

	// 中止剩余的同步和异步运行，等待子进程和临时文件清理完成
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), runDrainPeriod)
	defer cancelDrain()
	if err := s.generatorService.Shutdown(drainCtx); err != nil {
		logrus.Warnf("等待运行退出超时: %v", err)
	} else {
		logrus.Infof("所有运行已退出")
	}

	return nil
}

func (s *AppServer) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(mcpSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sessionManager.Sweep(mcpSessionIdle)
		}
	}
}
