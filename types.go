package main

import "github.com/xpzouying/starpath/pkg/steps"

// HTTP API 响应类型

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// SuccessResponse 成功响应
type SuccessResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

// GenerateRequest 生成测试提示词请求。video_url 与 loom_url 二选一，loom_url 优先。
type GenerateRequest struct {
	VideoURL   string `json:"video_url,omitempty"`
	LoomURL    string `json:"loom_url,omitempty"`
	Framework  string `json:"framework,omitempty"`
	TestRunner string `json:"test_runner,omitempty"`
	// Webhook 仅异步接口使用
	Webhook string `json:"webhook,omitempty"`
}

// SourceURL 实际要处理的视频地址
func (r *GenerateRequest) SourceURL() string {
	if r.LoomURL != "" {
		return r.LoomURL
	}
	return r.VideoURL
}

// GenerateMetadata 生成结果的统计信息
type GenerateMetadata struct {
	StepCount           int     `json:"step_count"`
	FrameCount          int     `json:"frame_count"`
	RequestedFrames     int     `json:"requested_frames"`
	DurationSeconds     float64 `json:"duration_seconds"`
	DurationEstimated   bool    `json:"duration_estimated"`
	ApplicationType     string  `json:"application_type"`
	Framework           string  `json:"framework,omitempty"`
	EdgeCaseCount       int     `json:"edge_case_count"`
	PotentialIssueCount int     `json:"potential_issue_count"`
	ElapsedMillis       int64   `json:"elapsed_ms"`
}

// GenerateResponse 生成测试提示词响应
type GenerateResponse struct {
	RunID    string           `json:"run_id"`
	Prompt   string           `json:"prompt"`
	Steps    []steps.Step     `json:"steps"`
	Metadata GenerateMetadata `json:"metadata"`
}

// MCP 相关类型（用于内部转换）

// MCPToolResult MCP 工具结果（内部使用）
type MCPToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

// MCPContent MCP 内容（内部使用）
type MCPContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
