package main

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

// GenerateTestPromptArgs generate_test_prompt 工具参数
type GenerateTestPromptArgs struct {
	VideoURL   string `json:"video_url" jsonschema:"视频地址：可直接下载的视频 URL 或 Loom 分享链接（https://www.loom.com/share/...）"`
	Framework  string `json:"framework,omitempty" jsonschema:"被测应用的框架（可选），默认 Next.js (App Router)"`
	TestRunner string `json:"test_runner,omitempty" jsonschema:"测试框架（可选），默认 Playwright"`
}

// InitMCPServer 初始化 MCP Server
func InitMCPServer(appServer *AppServer) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "starpath",
			Version: "1.0.0",
		},
		nil,
	)

	registerTools(server, appServer)

	logrus.Debug("MCP Server initialized")

	return server
}

// registerTools 注册所有 MCP 工具
func registerTools(server *mcp.Server, appServer *AppServer) {
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "generate_test_prompt",
			Description: "分析一段产品演示视频，推断用户操作步骤，并生成用于编写端到端测试的提示词",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args GenerateTestPromptArgs) (*mcp.CallToolResult, any, error) {
			result := appServer.handleGenerateTestPrompt(ctx, args)
			return convertToMCPResult(result), nil, nil
		},
	)
}

// convertToMCPResult 将自定义的 MCPToolResult 转换为官方 SDK 的格式
func convertToMCPResult(result *MCPToolResult) *mcp.CallToolResult {
	var contents []mcp.Content
	for _, c := range result.Content {
		if c.Type == "text" {
			contents = append(contents, &mcp.TextContent{Text: c.Text})
		}
	}

	return &mcp.CallToolResult{
		Content: contents,
		IsError: result.IsError,
	}
}
