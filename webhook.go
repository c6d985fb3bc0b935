package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xpzouying/starpath/pkg/apperr"
)

const (
	EventGenerateCompleted = "generate.completed"
	EventGenerateFailed    = "generate.failed"
)

// WebhookPayload webhook 发送的数据结构
type WebhookPayload struct {
	Event     string            `json:"event"`
	Source    string            `json:"source"`
	Result    *GenerateResponse `json:"result,omitempty"`
	Error     *WebhookError     `json:"error,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// WebhookError 失败事件携带的错误信息
type WebhookError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NewCompletedPayload 生成成功事件
func NewCompletedPayload(source string, resp *GenerateResponse) WebhookPayload {
	return WebhookPayload{
		Event:     EventGenerateCompleted,
		Source:    source,
		Result:    resp,
		Timestamp: time.Now().Unix(),
	}
}

// NewFailedPayload 生成失败事件
func NewFailedPayload(source string, err error, message string) WebhookPayload {
	return WebhookPayload{
		Event:  EventGenerateFailed,
		Source: source,
		Error: &WebhookError{
			Kind:    apperr.KindOf(err).String(),
			Message: message,
		},
		Timestamp: time.Now().Unix(),
	}
}

// WebhookSender webhook 发送器
type WebhookSender struct {
	client  *http.Client
	timeout time.Duration
}

// NewWebhookSender 创建 webhook 发送器
func NewWebhookSender() *WebhookSender {
	return &WebhookSender{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		timeout: 10 * time.Second,
	}
}

// SendAsync 异步发送 webhook，失败只记录日志
func (w *WebhookSender) SendAsync(webhookURL string, payload WebhookPayload) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.Errorf("webhook panic: %v", r)
			}
		}()

		if err := w.Send(context.Background(), webhookURL, payload); err != nil {
			logrus.Errorf("webhook 发送失败 [%s]: %v", webhookURL, err)
		} else {
			logrus.Infof("webhook 发送成功 [%s] %s", webhookURL, payload.Event)
		}
	}()
}

// Send 同步发送 webhook
func (w *WebhookSender) Send(ctx context.Context, webhookURL string, payload WebhookPayload) error {
	if err := ValidateWebhookURL(webhookURL); err != nil {
		return fmt.Errorf("无效的 webhook URL: %w", err)
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化 payload 失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "starpath-webhook/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook 返回非成功状态码: %d", resp.StatusCode)
	}
	return nil
}

// ValidateWebhookURL 只接受带 host 的 http/https 地址
func ValidateWebhookURL(webhookURL string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL 不能为空")
	}

	u, err := url.Parse(webhookURL)
	if err != nil {
		return fmt.Errorf("URL 格式错误: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("只支持 http 和 https 协议")
	}
	if u.Host == "" {
		return fmt.Errorf("URL 必须包含 host")
	}
	return nil
}
