package downloader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/starpath/pkg/apperr"
)

const defaultVideoExt = ".mp4"

// sniffLen filetype 识别所需的头部字节数
const sniffLen = 262

// HTTPStatusError 服务端返回了非 2xx 状态码
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	return fmt.Sprintf("HTTP %d %s (%s)", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// DownloadedVideo 下载到本地的临时视频文件，归创建它的那次运行所有
type DownloadedVideo struct {
	Path string
	Size int64
	// Source 原始输入地址；ResolvedURL 实际下载的地址
	Source      VideoSource
	ResolvedURL string
}

// Remove 删除临时文件，文件不存在时视为成功
func (v *DownloadedVideo) Remove() error {
	if v == nil || v.Path == "" {
		return nil
	}
	if err := os.Remove(v.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// VideoDownloader 视频下载器
type VideoDownloader struct {
	savePath   string
	httpClient *http.Client
	loom       *LoomResolver
	log        *logrus.Entry
}

// NewVideoDownloader 创建视频下载器，savePath 为临时文件所在目录
func NewVideoDownloader(savePath string, httpClient *http.Client, loom *LoomResolver) *VideoDownloader {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if loom == nil {
		loom = NewLoomResolver(httpClient)
	}
	return &VideoDownloader{
		savePath:   savePath,
		httpClient: httpClient,
		loom:       loom,
		log:        logrus.WithField("component", "downloader"),
	}
}

// Fetch 解析输入地址并下载视频到临时文件。
// 出错时不会留下临时文件；成功后由调用方负责 Remove。
func (d *VideoDownloader) Fetch(ctx context.Context, rawURL string) (*DownloadedVideo, error) {
	src, err := Classify(rawURL)
	if err != nil {
		return nil, err
	}

	switch src.Kind {
	case SourceLoomShare:
		loc, videoID, err := d.loom.Resolve(ctx, src)
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("loom-%s-%s-%d%s", sanitizeName(videoID), shortToken(), time.Now().UnixNano(), defaultVideoExt)
		video, err := d.download(ctx, loc.URL, func(*bufio.Reader) string { return name })
		if err != nil {
			return nil, err
		}
		video.Source = src
		return video, nil

	default:
		d.log.Infof("下载视频: %s", src.URL)
		video, err := d.download(ctx, src.URL, func(br *bufio.Reader) string {
			return fmt.Sprintf("video-%s-%d%s", shortToken(), time.Now().UnixNano(), videoExt(src.parsed, br))
		})
		if err != nil {
			return nil, err
		}
		video.Source = src
		return video, nil
	}
}

// download GET 目标地址并流式写入临时文件
func (d *VideoDownloader) download(ctx context.Context, target string, nameFn func(*bufio.Reader) string) (*DownloadedVideo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDownload, err, "failed to create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDownload, errors.Wrap(err, "failed to download video"), "failed to download video")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.Wrap(apperr.KindDownload, &HTTPStatusError{URL: target, StatusCode: resp.StatusCode},
			fmt.Sprintf("failed to download video: %s", http.StatusText(resp.StatusCode)))
	}

	br := bufio.NewReaderSize(resp.Body, 64*1024)
	filePath := filepath.Join(d.savePath, nameFn(br))

	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDownload, errors.Wrap(err, "failed to create temp file"), "failed to save video")
	}

	size, copyErr := io.Copy(f, br)
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(filePath)
		return nil, apperr.Wrap(apperr.KindDownload, errors.Wrap(copyErr, "failed to write video data"), "failed to save video")
	}

	d.log.Infof("视频下载完成: %s (%d bytes)", filePath, size)
	return &DownloadedVideo{Path: filePath, Size: size, ResolvedURL: target}, nil
}

// videoExt 优先使用地址中的扩展名；没有时根据文件头识别，仍识别不出则用 .mp4
func videoExt(u *url.URL, br *bufio.Reader) string {
	if u != nil {
		if ext := path.Ext(u.Path); ext != "" && len(ext) <= 6 {
			return strings.ToLower(ext)
		}
	}
	if br != nil {
		head, _ := br.Peek(sniffLen)
		if filetype.IsVideo(head) {
			if kind, err := filetype.Match(head); err == nil && kind.Extension != "" {
				return "." + kind.Extension
			}
		}
	}
	return defaultVideoExt
}

func shortToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
