package main

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xpzouying/starpath/configs"
	"github.com/xpzouying/starpath/pkg/analysis"
	"github.com/xpzouying/starpath/pkg/apperr"
	"github.com/xpzouying/starpath/pkg/downloader"
	"github.com/xpzouying/starpath/pkg/ffmpeg"
	"github.com/xpzouying/starpath/pkg/pipeline"
	"github.com/xpzouying/starpath/pkg/prompt"
)

// PipelineRunner 执行一次完整的视频分析
type PipelineRunner interface {
	Run(ctx context.Context, rawURL string) (*pipeline.Result, error)
	Timeout() time.Duration
}

// GeneratorService 测试提示词生成服务
type GeneratorService struct {
	pipeline      PipelineRunner
	metrics       *Metrics
	webhookSender *WebhookSender

	framework  string
	testRunner string
	managed    bool

	// baseCtx 在服务关闭时取消，所有运行都从它派生
	baseCtx context.Context
	cancel  context.CancelFunc
	runs    sync.WaitGroup
}

// NewGeneratorService 按配置组装下载、抽帧、分析各组件
func NewGeneratorService(cfg *configs.Config, decoder configs.Decoder, metrics *Metrics) (*GeneratorService, error) {
	analyzer, err := analysis.NewClient(analysis.Config{
		APIKey:    cfg.Analysis.APIKey,
		BaseURL:   cfg.Analysis.BaseURL,
		Model:     cfg.Analysis.Model,
		MaxTokens: cfg.Analysis.MaxTokens,
		Timeout:   cfg.Analysis.Timeout,
	})
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{}
	loom := downloader.NewLoomResolver(httpClient,
		downloader.WithOEmbedEndpoint(cfg.Source.OEmbedEndpoint),
		downloader.WithCDNBaseURL(cfg.Source.CDNBaseURL),
		downloader.WithProbeTimeout(cfg.Source.ProbeTimeout),
	)
	fetcher := downloader.NewVideoDownloader(cfg.TempDir(), httpClient, loom)

	runner := ffmpeg.NewExecRunner(decoder.Path())
	sampler := ffmpeg.NewSampler(runner, ffmpeg.SamplerOptions{
		FrameCount: cfg.Sampling.FrameCount,
		Quality:    cfg.Sampling.Quality,
		ScaleWidth: cfg.Sampling.ScaleWidth,
		TempDir:    cfg.TempDir(),
		DebugDir:   cfg.DebugFramesDir(),
	})

	p := pipeline.New(fetcher, runner, sampler, analyzer,
		pipeline.WithTimeout(cfg.RunTimeout()),
		pipeline.WithMaxConcurrentRuns(cfg.Pipeline.MaxConcurrentRuns),
	)

	return newGeneratorService(p, cfg, metrics), nil
}

func newGeneratorService(p PipelineRunner, cfg *configs.Config, metrics *Metrics) *GeneratorService {
	if metrics == nil {
		metrics = NewMetrics()
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &GeneratorService{
		baseCtx:       baseCtx,
		cancel:        cancel,
		pipeline:      p,
		metrics:       metrics,
		webhookSender: NewWebhookSender(),
		framework:     cfg.Prompt.Framework,
		testRunner:    cfg.Prompt.TestRunner,
		managed:       cfg.Managed,
	}
}

// Generate 处理视频并生成测试提示词。失败时不返回任何部分结果。
func (s *GeneratorService) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	sourceURL := strings.TrimSpace(req.SourceURL())
	if sourceURL == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "No video URL provided")
	}

	s.runs.Add(1)
	defer s.runs.Done()

	// 请求结束或服务关闭都会中止运行
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.baseCtx, cancel)
	defer stop()

	done := s.metrics.RunStarted()
	res, err := s.pipeline.Run(ctx, sourceURL)
	if err != nil {
		done(0, err)
		return nil, err
	}
	done(res.FrameCount, nil)

	framework := firstNonEmpty(req.Framework, s.framework)
	testRunner := firstNonEmpty(req.TestRunner, s.testRunner)

	text := prompt.Render(prompt.Input{
		Framework:  framework,
		TestRunner: testRunner,
		Steps:      res.Steps,
		Context:    res.Context,
	})

	app := res.Context.ApplicationContext
	return &GenerateResponse{
		RunID:  res.RunID,
		Prompt: text,
		Steps:  res.Steps,
		Metadata: GenerateMetadata{
			StepCount:           len(res.Steps),
			FrameCount:          res.FrameCount,
			RequestedFrames:     res.RequestedFrames,
			DurationSeconds:     res.Duration,
			DurationEstimated:   res.DurationFallback,
			ApplicationType:     app.Type,
			Framework:           app.Framework,
			EdgeCaseCount:       len(res.Context.EdgeCases),
			PotentialIssueCount: len(res.Context.PotentialIssues),
			ElapsedMillis:       res.Elapsed.Milliseconds(),
		},
	}, nil
}

// GenerateAsync 后台执行生成，完成后把结果或错误推送到 webhook
func (s *GeneratorService) GenerateAsync(req GenerateRequest) {
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer func() {
			if r := recover(); r != nil {
				logrus.Errorf("异步生成 panic: %v", r)
			}
		}()

		logrus.Infof("开始异步生成，webhook: %s", req.Webhook)

		// 不继承请求的 context，运行期限由流水线控制，服务关闭时随 baseCtx 取消
		resp, err := s.Generate(s.baseCtx, &req)
		if err != nil {
			logrus.Errorf("异步生成失败: %v", err)
			s.webhookSender.SendAsync(req.Webhook, NewFailedPayload(req.SourceURL(), err, s.UserMessage(err)))
			return
		}

		logrus.Infof("异步生成成功，run_id=%s，准备发送 webhook", resp.RunID)
		s.webhookSender.SendAsync(req.Webhook, NewCompletedPayload(req.SourceURL(), resp))
	}()
}

// Shutdown 取消所有进行中的运行并等待它们退出。
// 运行退出时会杀掉 ffmpeg 子进程并删除临时文件；ctx 到期时不再等待。
func (s *GeneratorService) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UserMessage 面向用户的错误说明；超时给出与部署环境相关的提示
func (s *GeneratorService) UserMessage(err error) string {
	if apperr.IsTimeout(err) {
		limit := s.pipeline.Timeout().Round(time.Second)
		if s.managed {
			return "Video processing took too long (" + limit.String() + " limit in this deployment). " +
				"Please try with a shorter video or run the app locally."
		}
		return "Video processing took too long (" + limit.String() + " limit). Please try with a shorter video."
	}
	return apperr.Detail(err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
