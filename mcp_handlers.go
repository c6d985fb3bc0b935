package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/xpzouying/starpath/pkg/apperr"
)

// handleGenerateTestPrompt 处理视频并返回提示词，第二段内容是步骤和统计信息的 JSON
func (s *AppServer) handleGenerateTestPrompt(ctx context.Context, args GenerateTestPromptArgs) *MCPToolResult {
	logrus.Infof("MCP: 生成测试提示词 %s", args.VideoURL)

	resp, err := s.generatorService.Generate(ctx, &GenerateRequest{
		VideoURL:   args.VideoURL,
		Framework:  args.Framework,
		TestRunner: args.TestRunner,
	})
	if err != nil {
		return &MCPToolResult{
			Content: []MCPContent{{
				Type: "text",
				Text: fmt.Sprintf("生成失败 (%s): %s", apperr.KindOf(err), s.generatorService.UserMessage(err)),
			}},
			IsError: true,
		}
	}

	summary := struct {
		RunID    string           `json:"run_id"`
		Steps    any              `json:"steps"`
		Metadata GenerateMetadata `json:"metadata"`
	}{resp.RunID, resp.Steps, resp.Metadata}

	jsonData, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return &MCPToolResult{
			Content: []MCPContent{{Type: "text", Text: "序列化结果失败: " + err.Error()}},
			IsError: true,
		}
	}

	return &MCPToolResult{
		Content: []MCPContent{
			{Type: "text", Text: resp.Prompt},
			{Type: "text", Text: string(jsonData)},
		},
	}
}
