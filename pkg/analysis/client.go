package analysis

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/starpath/pkg/apperr"
)

const (
	DefaultModel     = "claude-sonnet-4-5"
	DefaultMaxTokens = 4096
)

// Config 视觉分析客户端配置
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
	Timeout   time.Duration
}

// Client 调用 Anthropic Messages API 分析帧序列
type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	log       *logrus.Entry
}

// NewClient 创建分析客户端。SDK 自带的重试被关闭，失败直接交给调用方。
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, apperr.New(apperr.KindConfiguration, "ANTHROPIC_API_KEY environment variable is not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		log:       logrus.WithField("component", "analysis"),
	}, nil
}

// Analyze 把按时间排序的 JPEG 帧发给模型并解析返回的 JSON
func (c *Client) Analyze(ctx context.Context, frames [][]byte) (*Result, error) {
	if len(frames) == 0 {
		return nil, apperr.New(apperr.KindAnalysis, "no frames to analyze")
	}

	parent := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(frames)*2+1)
	for i, frame := range frames {
		blocks = append(blocks,
			anthropic.NewTextBlock(fmt.Sprintf("[Snapshot %d of %d]", i+1, len(frames))),
			anthropic.NewImageBlockBase64("image/jpeg", base64.StdEncoding.EncodeToString(frame)),
		)
	}
	blocks = append(blocks, anthropic.NewTextBlock(instruction(len(frames))))

	c.log.Infof("发送 %d 帧进行分析，模型 %s", len(frames), c.model)

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	})
	if err != nil {
		// 调用方的期限或取消原样返回，由上层归类
		if ctxErr := parent.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperr.Wrap(apperr.KindAnalysis, err, "vision analysis request failed")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, apperr.New(apperr.KindAnalysis, "no text content in analysis response")
	}

	res, err := ParseResult(text.String())
	if err != nil {
		return nil, err
	}

	c.log.Infof("分析完成: %d 个步骤, %d 个边界情况, %d 个潜在问题",
		len(res.Steps), len(res.EdgeCases), len(res.PotentialIssues))
	return res, nil
}

func instruction(frameCount int) string {
	return fmt.Sprintf(`You are an expert user flow analyst. You are looking at a sequence of %d screenshots taken evenly across a video demonstration, in order.

The video may contain several distinct sections (for example a login page followed by a dashboard). Notice when a major transition happens and document the actions in the new section carefully.

1. Application context
   - What application is this? Describe every visible part (login, dashboard, menus and so on).
   - Identify the framework if possible.
   - Describe the main purpose and the visible features.

2. Sequential user flow
   - Go through the screenshots from first to last.
   - For each significant change describe what was clicked or typed, where on the screen it happened and what changed as a result.
   - Do not skip the end of the video.

3. Edge cases and issues
   - Based on the entire flow, list what needs testing: form validation, list interactions, toggle states, empty states.
   - Note accessibility or UI consistency concerns.

Respond with JSON in exactly this shape:

{
  "applicationContext": {
    "type": "web application | mobile app | desktop app",
    "framework": "React | Vue | etc. (or null)",
    "description": "Description covering all visible sections"
  },
  "steps": [
    {
      "description": "Clear description of the interaction",
      "action": "click | type | navigate | toggle | assert",
      "element": "Specific UI element, e.g. 'Add Task button'",
      "expectedResult": "Immediate feedback or screen change"
    }
  ],
  "edgeCases": ["Edge cases for the discovered features"],
  "potentialIssues": ["Issues for every section of the UI"]
}`, frameCount)
}
