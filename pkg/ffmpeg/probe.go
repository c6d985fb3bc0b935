package ffmpeg

import (
	"context"
	"errors"
	"regexp"
	"strconv"

	"github.com/xpzouying/starpath/pkg/apperr"
)

// DefaultDuration 无法得到时长时使用的兜底值（秒）
const DefaultDuration = 30.0

var durationRe = regexp.MustCompile(`Duration: (\d{2}):(\d{2}):(\d{2}\.\d{2})`)

// DurationEstimate 时长估算结果。Fallback 非空表示使用了兜底值，属于非致命情况。
type DurationEstimate struct {
	Seconds  float64
	Fallback error
}

// ParseDuration 从 ffmpeg 诊断输出中解析 "Duration: HH:MM:SS.ss"
func ParseDuration(text string) (float64, bool) {
	m := durationRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	h, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	mi, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	s, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}
	return float64(h*3600+mi*60) + s, true
}

// ProbeDuration 用 ffmpeg -i 的诊断输出估算视频时长，不依赖 ffprobe。
// 不带输出文件时 ffmpeg 会以非零状态退出，这是预期行为。
// 只有 ctx 被取消时才返回 error；解析失败返回兜底时长。
func ProbeDuration(ctx context.Context, runner Runner, videoPath string) (DurationEstimate, error) {
	res, err := runner.Run(ctx, "-hide_banner", "-i", videoPath)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return DurationEstimate{}, ctxErr
	}

	var stderr string
	if res != nil {
		stderr = string(res.Stderr)
	}

	if secs, ok := ParseDuration(stderr); ok && secs > 0 {
		return DurationEstimate{Seconds: secs}, nil
	}

	detail := "duration not found in decoder output"
	var exitErr *ExitError
	if err != nil && !errors.As(err, &exitErr) {
		detail = "decoder could not be run"
	}
	return DurationEstimate{
		Seconds:  DefaultDuration,
		Fallback: &apperr.Error{Kind: apperr.KindProbeFallback, Detail: detail, Err: err},
	}, nil
}
