package analysis

import (
	"encoding/json"
	"strings"

	"github.com/xpzouying/starpath/pkg/apperr"
)

// ExtractJSON 取回复文本中第一个 '{' 到最后一个 '}' 之间的内容。
// 这是尽力而为的提取：文本里如果有多段 JSON 或无关的大括号会得到无法解析的结果。
func ExtractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

// ParseResult 从回复文本中解析分析结果
func ParseResult(text string) (*Result, error) {
	raw, ok := ExtractJSON(text)
	if !ok {
		return nil, apperr.New(apperr.KindAnalysis, "could not extract JSON from analysis response")
	}

	var res Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, apperr.Wrap(apperr.KindAnalysis, err, "could not parse JSON from analysis response")
	}

	// JSON 里的 framework 可能是 null 或字面量 "null"
	if strings.EqualFold(strings.TrimSpace(res.ApplicationContext.Framework), "null") {
		res.ApplicationContext.Framework = ""
	}
	return &res, nil
}
