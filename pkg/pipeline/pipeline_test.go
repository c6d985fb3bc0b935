package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xpzouying/starpath/pkg/analysis"
	"github.com/xpzouying/starpath/pkg/apperr"
	"github.com/xpzouying/starpath/pkg/downloader"
	"github.com/xpzouying/starpath/pkg/ffmpeg"
	"github.com/xpzouying/starpath/pkg/steps"
)

var (
	jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0xFF, 0xD9}
	mp4Bytes  = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2', 0x00, 0x00, 0x00, 0x00, 'i', 's', 'o', 'm', 'm', 'p', '4', '2'}
)

// decoderStub 时长探测返回 stderr，抽帧写入 JPEG
type decoderStub struct {
	mu          sync.Mutex
	stderr      string
	failFrames  bool
	blockFrames bool
	frameCalls  int
}

func (d *decoderStub) Run(ctx context.Context, args ...string) (*ffmpeg.Result, error) {
	out := args[len(args)-1]
	if !strings.HasSuffix(out, ".jpg") {
		return &ffmpeg.Result{ExitCode: 1, Stderr: []byte(d.stderr)}, &ffmpeg.ExitError{ExitCode: 1, Stderr: d.stderr}
	}

	d.mu.Lock()
	d.frameCalls++
	d.mu.Unlock()

	switch {
	case d.blockFrames:
		<-ctx.Done()
		return nil, ctx.Err()
	case d.failFrames:
		return &ffmpeg.Result{ExitCode: 1}, &ffmpeg.ExitError{ExitCode: 1, Stderr: "decode failed"}
	}
	if err := os.WriteFile(out, jpegBytes, 0o600); err != nil {
		return nil, err
	}
	return &ffmpeg.Result{}, nil
}

type analyzerStub struct {
	mu     sync.Mutex
	result *analysis.Result
	err    error
	block  bool
	frames int
}

func (a *analyzerStub) Analyze(ctx context.Context, frames [][]byte) (*analysis.Result, error) {
	a.mu.Lock()
	a.frames = len(frames)
	a.mu.Unlock()
	if a.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return a.result, a.err
}

type fetcherFunc func(ctx context.Context, rawURL string) (*downloader.DownloadedVideo, error)

func (f fetcherFunc) Fetch(ctx context.Context, rawURL string) (*downloader.DownloadedVideo, error) {
	return f(ctx, rawURL)
}

func sampleAnalysis() *analysis.Result {
	return &analysis.Result{
		ApplicationContext: analysis.ApplicationContext{Type: "web application", Description: "Todo app"},
		Steps: []analysis.Observation{
			{Action: "navigate", Element: "/todos"},
			{Action: "type", Element: "New task"},
			{Action: "TOGGLE", Element: "Done checkbox"},
			{Action: "banana", Description: "row moves", ExpectedResult: "Row highlighted"},
		},
		EdgeCases: []string{"Empty title"},
	}
}

func videoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/clip.mp4" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(mp4Bytes)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	dir      string
	srv      *httptest.Server
	decoder  *decoderStub
	analyzer *analyzerStub
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		dir:      t.TempDir(),
		srv:      videoServer(t),
		decoder:  &decoderStub{stderr: "  Duration: 00:00:10.00, start: 0.000000"},
		analyzer: &analyzerStub{result: sampleAnalysis()},
	}
}

func (f *fixture) pipeline(opts ...Option) *Pipeline {
	fetcher := downloader.NewVideoDownloader(f.dir, f.srv.Client(), nil)
	sampler := ffmpeg.NewSampler(f.decoder, ffmpeg.SamplerOptions{FrameCount: 5, TempDir: f.dir})
	return New(fetcher, f.decoder, sampler, f.analyzer, opts...)
}

func assertScratchEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Empty(t, names, "scratch files left behind")
}

func TestRun_Success(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(WithTimeout(10 * time.Second))

	res, err := p.Run(context.Background(), f.srv.URL+"/clip.mp4")
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 5, res.FrameCount)
	assert.Equal(t, 5, res.RequestedFrames)
	assert.Equal(t, 5, f.analyzer.frames)
	assert.InDelta(t, 10.0, res.Duration, 1e-9)
	assert.False(t, res.DurationFallback)
	assert.Same(t, f.analyzer.result, res.Context)
	assert.Equal(t, []steps.Step{
		{Kind: steps.KindNavigate, Value: "/todos"},
		{Kind: steps.KindInput, Value: "New task"},
		{Kind: steps.KindClick, Value: "Done checkbox"},
		{Kind: steps.KindAssert, Value: "Row highlighted"},
	}, res.Steps)

	assertScratchEmpty(t, f.dir)
}

func TestRun_ProbeFallbackIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.decoder.stderr = "garbage output"

	res, err := f.pipeline().Run(context.Background(), f.srv.URL+"/clip.mp4")
	require.NoError(t, err)
	assert.True(t, res.DurationFallback)
	assert.InDelta(t, ffmpeg.DefaultDuration, res.Duration, 1e-9)
	assertScratchEmpty(t, f.dir)
}

func TestRun_Aborts(t *testing.T) {
	tests := []struct {
		name     string
		url      func(f *fixture) string
		setup    func(f *fixture)
		wantKind apperr.Kind
	}{
		{
			name:     "invalid url",
			url:      func(*fixture) string { return "ftp://example.com/video.mp4" },
			wantKind: apperr.KindInvalidInput,
		},
		{
			name:     "download status",
			url:      func(f *fixture) string { return f.srv.URL + "/missing.mp4" },
			wantKind: apperr.KindDownload,
		},
		{
			name:     "every frame fails",
			setup:    func(f *fixture) { f.decoder.failFrames = true },
			wantKind: apperr.KindDecode,
		},
		{
			name:     "analysis fails",
			setup:    func(f *fixture) { f.analyzer.err = apperr.New(apperr.KindAnalysis, "no JSON") },
			wantKind: apperr.KindAnalysis,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			rawURL := f.srv.URL + "/clip.mp4"
			if tt.url != nil {
				rawURL = tt.url(f)
			}

			res, err := f.pipeline(WithTimeout(10*time.Second)).Run(context.Background(), rawURL)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err), err.Error())
			assertScratchEmpty(t, f.dir)
		})
	}
}

func TestRun_SourceResolutionSkipsLaterStages(t *testing.T) {
	f := newFixture(t)
	fetcher := fetcherFunc(func(context.Context, string) (*downloader.DownloadedVideo, error) {
		return nil, apperr.New(apperr.KindSourceResolution, "video is private or removed")
	})
	sampler := ffmpeg.NewSampler(f.decoder, ffmpeg.SamplerOptions{FrameCount: 5, TempDir: f.dir})

	_, err := New(fetcher, f.decoder, sampler, f.analyzer).Run(context.Background(), "https://www.loom.com/share/abc")
	require.Error(t, err)
	assert.True(t, apperr.IsSourceResolution(err))
	assert.Zero(t, f.decoder.frameCalls)
	assert.Zero(t, f.analyzer.frames)
}

func TestRun_TimeoutDuringAnalysis(t *testing.T) {
	f := newFixture(t)
	f.analyzer.block = true

	_, err := f.pipeline(WithTimeout(200*time.Millisecond)).Run(context.Background(), f.srv.URL+"/clip.mp4")
	require.Error(t, err)
	assert.True(t, apperr.IsTimeout(err))
	assert.Contains(t, apperr.Detail(err), "200ms")
	assertScratchEmpty(t, f.dir)
}

func TestRun_TimeoutDuringDecode(t *testing.T) {
	f := newFixture(t)
	f.decoder.blockFrames = true

	_, err := f.pipeline(WithTimeout(200*time.Millisecond)).Run(context.Background(), f.srv.URL+"/clip.mp4")
	require.Error(t, err)
	assert.True(t, apperr.IsTimeout(err))
	assert.Equal(t, 1, f.decoder.frameCalls)
	assertScratchEmpty(t, f.dir)
}

func TestRun_WaitingForSlotCountsAgainstDeadline(t *testing.T) {
	f := newFixture(t)
	f.analyzer.block = true
	p := f.pipeline(WithTimeout(300*time.Millisecond), WithMaxConcurrentRuns(1))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Run(context.Background(), f.srv.URL+"/clip.mp4")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.Error(t, err)
		assert.True(t, apperr.IsTimeout(err))
	}
	assertScratchEmpty(t, f.dir)
}
