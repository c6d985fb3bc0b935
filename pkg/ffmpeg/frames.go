package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/starpath/pkg/apperr"
)

const (
	DefaultFrameCount = 30
	DefaultQuality    = 2
	DefaultScaleWidth = 1280

	// safeRatio 时间戳上限占总时长的比例，避免在流末尾 seek 失败
	safeRatio = 0.98

	framesDirPrefix = "starpath-frames-"
)

// SamplingPlan 采样计划
type SamplingPlan struct {
	Duration   float64
	FrameCount int
	Timestamps []float64
}

// PlanTimestamps 计算 n 个均匀分布的时间戳：t_i = duration*0.98*i/(n-1)。
// n 必须 >= 2，duration 必须为正。
func PlanTimestamps(duration float64, n int) (SamplingPlan, error) {
	if n < 2 {
		return SamplingPlan{}, apperr.New(apperr.KindInvalidInput, fmt.Sprintf("frame count must be at least 2, got %d", n))
	}
	if !(duration > 0) {
		return SamplingPlan{}, apperr.New(apperr.KindInvalidInput, fmt.Sprintf("duration must be positive, got %v", duration))
	}

	safe := duration * safeRatio
	ts := make([]float64, n)
	for i := range ts {
		// i/(n-1) 在末尾恰好为 1，保证最后一个时间戳不超过 safe
		ts[i] = safe * (float64(i) / float64(n-1))
	}
	return SamplingPlan{Duration: duration, FrameCount: n, Timestamps: ts}, nil
}

// Frame 一帧 JPEG 数据
type Frame struct {
	Index     int
	Timestamp float64
	Data      []byte
}

// FrameSet 按时间顺序排列的成功帧，长度不超过 Requested
type FrameSet struct {
	Requested int
	Frames    []Frame
}

// Len 成功帧数
func (fs *FrameSet) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.Frames)
}

// SamplerOptions 采样参数
type SamplerOptions struct {
	FrameCount int
	Quality    int
	ScaleWidth int
	// TempDir 帧临时目录的父目录
	TempDir string
	// DebugDir 非空时把帧另存一份便于排查，托管部署下必须为空
	DebugDir string
}

func (o *SamplerOptions) withDefaults() {
	if o.FrameCount == 0 {
		o.FrameCount = DefaultFrameCount
	}
	if o.Quality == 0 {
		o.Quality = DefaultQuality
	}
	if o.ScaleWidth == 0 {
		o.ScaleWidth = DefaultScaleWidth
	}
	if o.TempDir == "" {
		o.TempDir = os.TempDir()
	}
}

// Sampler 帧采样器
type Sampler struct {
	runner Runner
	opts   SamplerOptions
	log    *logrus.Entry
}

// NewSampler 创建帧采样器
func NewSampler(runner Runner, opts SamplerOptions) *Sampler {
	opts.withDefaults()
	return &Sampler{
		runner: runner,
		opts:   opts,
		log:    logrus.WithField("component", "sampler"),
	}
}

// frameResult 单个时间戳的抽帧结果
type frameResult struct {
	frame Frame
	err   error
}

// Extract 按计划顺序抽帧。
// 单帧失败只记录日志并丢弃；ctx 取消时立即中止。帧临时目录在返回前总会被删除。
func (s *Sampler) Extract(ctx context.Context, videoPath string, duration float64) (*FrameSet, error) {
	plan, err := PlanTimestamps(duration, s.opts.FrameCount)
	if err != nil {
		return nil, err
	}

	runName := framesDirPrefix + uuid.NewString()
	dir := filepath.Join(s.opts.TempDir, runName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "failed to create frames dir")
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			s.log.Warnf("清理帧目录失败 %s: %v", dir, err)
		}
	}()

	debugDir := s.prepareDebugDir(runName)

	s.log.Infof("视频时长 %.2fs，开始抽取 %d 帧", plan.Duration, plan.FrameCount)

	// 顺序执行：对同一个源并发 seek 会相互干扰
	results := make([]frameResult, 0, len(plan.Timestamps))
	for i, ts := range plan.Timestamps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r := s.extractOne(ctx, videoPath, dir, i, ts)
		if r.err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.log.Warnf("抽取第 %d 帧 (%.3fs) 失败: %v", i, ts, r.err)
		}
		results = append(results, r)
	}

	set := &FrameSet{Requested: plan.FrameCount}
	for _, r := range results {
		if r.err != nil {
			continue
		}
		set.Frames = append(set.Frames, r.frame)
		if debugDir != "" {
			s.writeDebugFrame(debugDir, r.frame)
		}
	}

	s.log.Infof("成功抽取 %d/%d 帧", set.Len(), set.Requested)
	return set, nil
}

func (s *Sampler) extractOne(ctx context.Context, videoPath, dir string, index int, ts float64) frameResult {
	out := filepath.Join(dir, frameName(index))
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-ss", formatSeconds(ts),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", strconv.Itoa(s.opts.Quality),
		"-vf", fmt.Sprintf("scale=%d:-1", s.opts.ScaleWidth),
		out,
	}

	if _, err := s.runner.Run(ctx, args...); err != nil {
		return frameResult{err: apperr.Wrapf(apperr.KindDecode, err, "frame %d at %.3fs", index, ts)}
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return frameResult{err: apperr.Wrapf(apperr.KindDecode, err, "read frame %d", index)}
	}
	if !filetype.IsImage(data) {
		return frameResult{err: apperr.New(apperr.KindDecode, fmt.Sprintf("frame %d is not an image", index))}
	}

	return frameResult{frame: Frame{Index: index, Timestamp: ts, Data: data}}
}

// prepareDebugDir 在调试目录下为本次运行创建独立的子目录，失败时放弃调试输出
func (s *Sampler) prepareDebugDir(runName string) string {
	if s.opts.DebugDir == "" {
		return ""
	}
	dir := filepath.Join(s.opts.DebugDir, runName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Warnf("无法创建调试目录 %s: %v", dir, err)
		return ""
	}
	s.log.Infof("调试帧写入 %s", dir)
	return dir
}

func (s *Sampler) writeDebugFrame(dir string, f Frame) {
	if err := os.WriteFile(filepath.Join(dir, frameName(f.Index)), f.Data, 0o644); err != nil {
		s.log.Debugf("写入调试帧失败: %v", err)
	}
}

func frameName(index int) string {
	return fmt.Sprintf("frame-%03d.jpg", index)
}

func formatSeconds(ts float64) string {
	return strconv.FormatFloat(ts, 'f', 3, 64)
}
