package downloader

import (
	"net/url"
	"strings"

	"github.com/xpzouying/starpath/pkg/apperr"
)

// SourceKind 视频来源类型
type SourceKind int

const (
	SourceGeneric SourceKind = iota
	SourceLoomShare
)

func (k SourceKind) String() string {
	switch k {
	case SourceLoomShare:
		return "loom_share"
	default:
		return "generic"
	}
}

// VideoSource 用户输入的视频地址及其分类，分类后不再修改
type VideoSource struct {
	URL  string
	Kind SourceKind

	parsed *url.URL
}

// Classify 按主机名判断来源类型
func Classify(rawURL string) (VideoSource, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !IsVideoURL(rawURL) {
		return VideoSource{}, apperr.New(apperr.KindInvalidInput, "video URL must start with http:// or https://")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return VideoSource{}, apperr.Wrap(apperr.KindInvalidInput, err, "invalid video URL format")
	}
	if u.Host == "" {
		return VideoSource{}, apperr.New(apperr.KindInvalidInput, "invalid video URL format")
	}

	src := VideoSource{URL: rawURL, Kind: SourceGeneric, parsed: u}
	if isLoomHost(u.Hostname()) {
		src.Kind = SourceLoomShare
	}
	return src, nil
}

func isLoomHost(host string) bool {
	host = strings.ToLower(host)
	return host == "loom.com" || host == "www.loom.com"
}

// IsVideoURL 判断是否为 http/https 地址
func IsVideoURL(path string) bool {
	return strings.HasPrefix(strings.ToLower(path), "http://") ||
		strings.HasPrefix(strings.ToLower(path), "https://")
}
