package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/starpath/pkg/apperr"
)

const (
	DefaultOEmbedEndpoint = "https://www.loom.com/v1/oembed"
	DefaultCDNBaseURL     = "https://cdn.loom.com"
)

// ResolvedLocation 解析后可直接下载的视频地址
type ResolvedLocation struct {
	URL string
	// Candidates 按探测顺序排列的全部候选地址
	Candidates []string
}

// LoomResolver 将 Loom 分享链接解析为 CDN 上的视频文件地址
type LoomResolver struct {
	httpClient     *http.Client
	oembedEndpoint string
	cdnBaseURL     string
	probeTimeout   time.Duration
	log            *logrus.Entry
}

// LoomOption LoomResolver 选项
type LoomOption func(*LoomResolver)

func WithOEmbedEndpoint(endpoint string) LoomOption {
	return func(r *LoomResolver) {
		if endpoint != "" {
			r.oembedEndpoint = endpoint
		}
	}
}

func WithCDNBaseURL(base string) LoomOption {
	return func(r *LoomResolver) {
		if base != "" {
			r.cdnBaseURL = strings.TrimRight(base, "/")
		}
	}
}

func WithProbeTimeout(d time.Duration) LoomOption {
	return func(r *LoomResolver) {
		if d > 0 {
			r.probeTimeout = d
		}
	}
}

// NewLoomResolver 创建 Loom 解析器
func NewLoomResolver(httpClient *http.Client, opts ...LoomOption) *LoomResolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	r := &LoomResolver{
		httpClient:     httpClient,
		oembedEndpoint: DefaultOEmbedEndpoint,
		cdnBaseURL:     DefaultCDNBaseURL,
		probeTimeout:   10 * time.Second,
		log:            logrus.WithField("component", "loom"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type oembedResponse struct {
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Resolve 解析分享链接：提取视频 ID -> 查询 oEmbed -> 按顺序探测 CDN 候选地址
func (r *LoomResolver) Resolve(ctx context.Context, src VideoSource) (*ResolvedLocation, string, error) {
	videoID := ExtractLoomVideoID(src.URL)
	if videoID == "" {
		return nil, "", apperr.New(apperr.KindSourceResolution, "could not extract video ID from Loom URL")
	}

	meta, err := r.fetchOEmbed(ctx, src.URL)
	if err != nil {
		return nil, videoID, err
	}

	r.log.Infof("Loom 视频: id=%s title=%q", videoID, meta.Title)

	hash := ExtractThumbnailHash(meta.ThumbnailURL, videoID)
	candidates := BuildCandidates(r.cdnBaseURL, videoID, hash)

	chosen, err := r.probe(ctx, candidates)
	if err != nil {
		return nil, videoID, err
	}

	return &ResolvedLocation{URL: chosen, Candidates: candidates}, videoID, nil
}

func (r *LoomResolver) fetchOEmbed(ctx context.Context, shareURL string) (*oembedResponse, error) {
	endpoint := fmt.Sprintf("%s?url=%s", r.oembedEndpoint, url.QueryEscape(shareURL))
	r.log.Infof("获取 oEmbed 信息: %s", endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSourceResolution, err, "failed to build oembed request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSourceResolution, errors.Wrap(err, "oembed request failed"),
			"could not access video metadata")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, apperr.Wrap(apperr.KindSourceResolution, &HTTPStatusError{URL: endpoint, StatusCode: resp.StatusCode},
			"could not access video; it might be private or the URL might be incorrect")
	}

	var meta oembedResponse
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, apperr.Wrap(apperr.KindSourceResolution, errors.Wrap(err, "failed to decode oembed"),
			"invalid video metadata")
	}
	return &meta, nil
}

// probe 按顺序对候选地址发 HEAD 请求，返回第一个成功的；命中后不再继续探测。
// 第 n 次尝试对应第 n 个候选，是有界有序的降级而不是对同一地址的重试。
func (r *LoomResolver) probe(ctx context.Context, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", apperr.New(apperr.KindSourceResolution, "no candidate video URL")
	}

	var (
		next   int
		chosen string
	)
	err := retry.Do(
		func() error {
			candidate := candidates[next]
			next++
			r.log.Debugf("探测候选地址: %s", candidate)
			if err := r.head(ctx, candidate); err != nil {
				return err
			}
			chosen = candidate
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(len(candidates))),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			r.log.Debugf("候选地址 #%d 不可用: %v", n+1, err)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", apperr.Wrap(apperr.KindSourceResolution, err, "could not find accessible video URL")
	}

	r.log.Infof("找到可用视频地址: %s", chosen)
	return chosen, nil
}

func (r *LoomResolver) head(ctx context.Context, target string) error {
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build probe request")
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "probe %s", target)
	}
	_ = resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPStatusError{URL: target, StatusCode: resp.StatusCode}
	}
	return nil
}

// ExtractLoomVideoID 取路径中 share 之后的一段作为视频 ID
func ExtractLoomVideoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(u.Path, "/")
	for i, p := range parts {
		if p == "share" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

// ExtractThumbnailHash 从缩略图地址中提取 <id>-<hash>. 形式的内容哈希，没有时返回空
func ExtractThumbnailHash(thumbnailURL, videoID string) string {
	if thumbnailURL == "" || videoID == "" {
		return ""
	}
	re, err := regexp.Compile(regexp.QuoteMeta(videoID) + `-([a-f0-9]+)\.`)
	if err != nil {
		return ""
	}
	m := re.FindStringSubmatch(thumbnailURL)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// BuildCandidates 生成有序的 CDN 候选地址：多清晰度、多种路径形态，有哈希时追加带哈希的地址
func BuildCandidates(cdnBaseURL, videoID, hash string) []string {
	base := strings.TrimRight(cdnBaseURL, "/")
	candidates := []string{
		fmt.Sprintf("%s/sessions/%s/transcoded/mp4/1080/video.mp4", base, videoID),
		fmt.Sprintf("%s/sessions/%s/transcoded/mp4/720/video.mp4", base, videoID),
		fmt.Sprintf("%s/sessions/original/%s.mp4", base, videoID),
		fmt.Sprintf("%s/sessions/transcoded/%s.mp4", base, videoID),
	}
	if hash != "" {
		candidates = append(candidates, fmt.Sprintf("%s/sessions/thumbnails/%s-%s.mp4", base, videoID, hash))
	}
	return candidates
}
