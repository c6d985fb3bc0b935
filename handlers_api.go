package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/starpath/pkg/apperr"
)

// respondError 返回错误响应
func respondError(c *gin.Context, statusCode int, code, message string, details any) {
	response := ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	}

	logrus.Errorf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, statusCode, code)

	c.JSON(statusCode, response)
}

// respondSuccess 返回成功响应
func respondSuccess(c *gin.Context, data any, message string) {
	response := SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	}

	logrus.Infof("%s %s %d", c.Request.Method, c.Request.URL.Path, http.StatusOK)

	c.JSON(http.StatusOK, response)
}

// errorStatus 错误分类对应的 HTTP 状态码、错误码和提示
func errorStatus(err error) (int, string, string) {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest, "INVALID_REQUEST", "请求参数错误"
	case apperr.KindSourceResolution:
		return http.StatusUnprocessableEntity, "SOURCE_RESOLUTION_FAILED", "无法解析视频地址"
	case apperr.KindDownload:
		return http.StatusBadGateway, "DOWNLOAD_FAILED", "视频下载失败"
	case apperr.KindDecode:
		return http.StatusUnprocessableEntity, "DECODE_FAILED", "无法从视频中提取画面"
	case apperr.KindAnalysis:
		return http.StatusBadGateway, "ANALYSIS_FAILED", "视频分析失败"
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout, "PROCESSING_TIMEOUT", "视频处理超时"
	case apperr.KindConfiguration:
		return http.StatusInternalServerError, "CONFIGURATION_ERROR", "服务配置错误"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "服务器内部错误"
	}
}

// generateHandler 同步生成测试提示词
func (s *AppServer) generateHandler(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST",
			"请求参数错误", err.Error())
		return
	}

	resp, err := s.generatorService.Generate(c.Request.Context(), &req)
	if err != nil {
		status, code, message := errorStatus(err)
		respondError(c, status, code, message, s.generatorService.UserMessage(err))
		return
	}

	respondSuccess(c, resp, "生成测试提示词成功")
}

// generateAsyncHandler 异步生成测试提示词
//
// 立即返回 202 Accepted，生成完成后把结果或错误推送到 webhook。
func (s *AppServer) generateAsyncHandler(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST",
			"请求参数错误", err.Error())
		return
	}

	if req.SourceURL() == "" {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST",
			"请求参数错误", "No video URL provided")
		return
	}
	if err := ValidateWebhookURL(req.Webhook); err != nil {
		respondError(c, http.StatusBadRequest, "WEBHOOK_REQUIRED",
			"异步模式需要提供有效的 webhook 参数", err.Error())
		return
	}

	c.JSON(http.StatusAccepted, SuccessResponse{
		Success: true,
		Data: map[string]any{
			"status":  "accepted",
			"webhook": req.Webhook,
		},
		Message: "请求已接受，结果将通过 webhook 通知",
	})

	s.generatorService.GenerateAsync(req)
}

// healthHandler 健康检查
func healthHandler(c *gin.Context) {
	respondSuccess(c, map[string]any{
		"status":    "healthy",
		"service":   "starpath",
		"timestamp": time.Now().Unix(),
	}, "服务正常")
}
