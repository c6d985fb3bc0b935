package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/xpzouying/starpath/pkg/analysis"
	"github.com/xpzouying/starpath/pkg/apperr"
	"github.com/xpzouying/starpath/pkg/downloader"
	"github.com/xpzouying/starpath/pkg/ffmpeg"
	"github.com/xpzouying/starpath/pkg/steps"
)

// Fetcher 把输入地址下载成本地临时文件
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*downloader.DownloadedVideo, error)
}

// FrameExtractor 从本地视频中抽帧
type FrameExtractor interface {
	Extract(ctx context.Context, videoPath string, duration float64) (*ffmpeg.FrameSet, error)
}

// Analyzer 视觉分析服务
type Analyzer interface {
	Analyze(ctx context.Context, frames [][]byte) (*analysis.Result, error)
}

// Result 一次成功运行的输出
type Result struct {
	RunID string
	Steps []steps.Step
	// Context 分析服务返回的原始结果，不做修改
	Context *analysis.Result

	FrameCount       int
	RequestedFrames  int
	Duration         float64
	DurationFallback bool
	Elapsed          time.Duration
}

// Pipeline 下载 -> 估算时长 -> 抽帧 -> 分析 -> 步骤分类
type Pipeline struct {
	fetcher  Fetcher
	runner   ffmpeg.Runner
	sampler  FrameExtractor
	analyzer Analyzer

	timeout time.Duration
	sem     *semaphore.Weighted
	log     *logrus.Entry
}

type Option func(*Pipeline)

// WithTimeout 单次运行的总期限，包含排队等待的时间
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

// WithMaxConcurrentRuns 同时执行的运行数上限
func WithMaxConcurrentRuns(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// New 创建流水线。runner 用于时长估算，sampler 通常是基于同一 runner 的 *ffmpeg.Sampler。
func New(fetcher Fetcher, runner ffmpeg.Runner, sampler FrameExtractor, analyzer Analyzer, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher:  fetcher,
		runner:   runner,
		sampler:  sampler,
		analyzer: analyzer,
		log:      logrus.WithField("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Timeout 配置的运行期限
func (p *Pipeline) Timeout() time.Duration { return p.timeout }

// Run 执行一次完整运行。失败时不返回部分步骤；临时文件在任何退出路径上都会被删除。
func (p *Pipeline) Run(ctx context.Context, rawURL string) (*Result, error) {
	runID := uuid.NewString()
	log := p.log.WithField("run_id", runID)
	start := time.Now()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	res, err := p.run(ctx, log, rawURL)
	if err != nil {
		err = p.classify(ctx, err)
		log.Errorf("运行失败 (%s): %v", apperr.KindOf(err), err)
		return nil, err
	}

	res.RunID = runID
	res.Elapsed = time.Since(start)
	log.Infof("运行完成: %d 帧, %d 个步骤, 耗时 %s", res.FrameCount, len(res.Steps), res.Elapsed.Round(time.Millisecond))
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, log *logrus.Entry, rawURL string) (*Result, error) {
	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, errors.Wrap(err, "waiting for a free run slot")
		}
		defer p.sem.Release(1)
	}

	log.Infof("开始处理视频: %s", rawURL)
	video, err := p.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := video.Remove(); err != nil {
			log.Warnf("删除临时视频失败: %v", err)
		}
	}()
	log.Infof("视频已下载: %s (%d bytes)", video.Path, video.Size)

	est, err := ffmpeg.ProbeDuration(ctx, p.runner, video.Path)
	if err != nil {
		return nil, err
	}
	if est.Fallback != nil {
		log.Warnf("无法获取视频时长，使用默认值 %.0fs: %v", est.Seconds, est.Fallback)
	} else {
		log.Infof("视频时长: %.2fs", est.Seconds)
	}

	frames, err := p.sampler.Extract(ctx, video.Path, est.Seconds)
	if err != nil {
		return nil, err
	}
	if frames.Len() == 0 {
		return nil, apperr.New(apperr.KindDecode, "no frames could be extracted from the video")
	}

	images := make([][]byte, 0, frames.Len())
	for _, f := range frames.Frames {
		images = append(images, f.Data)
	}

	result, err := p.analyzer.Analyze(ctx, images)
	if err != nil {
		return nil, err
	}

	return &Result{
		Steps:            steps.Classify(result.Steps),
		Context:          result,
		FrameCount:       frames.Len(),
		RequestedFrames:  frames.Requested,
		Duration:         est.Seconds,
		DurationFallback: est.Fallback != nil,
	}, nil
}

// classify 期限已过时无论底层是什么错误都报告为超时
func (p *Pipeline) classify(ctx context.Context, err error) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		detail := "video processing deadline exceeded"
		if p.timeout > 0 {
			detail = fmt.Sprintf("video processing exceeded the %s limit", p.timeout)
		}
		return apperr.Wrap(apperr.KindTimeout, err, detail)
	}
	return err
}
