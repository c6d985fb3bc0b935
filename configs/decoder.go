package configs

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/xpzouying/starpath/pkg/apperr"
)

// Decoder 启动时解析一次的 ffmpeg 位置，之后只读，通过参数传给需要它的组件
type Decoder struct {
	path string
}

// Path ffmpeg 可执行文件路径
func (d Decoder) Path() string { return d.path }

// ResolveDecoder 解析 ffmpeg 位置。
// 顺序：显式配置 -> 托管部署随包二进制 -> PATH。
func ResolveDecoder(cfg *Config) (Decoder, error) {
	var candidate string
	switch {
	case cfg.Decoder.Path != "":
		candidate = cfg.Decoder.Path
	case cfg.Managed:
		candidate = cfg.Decoder.ManagedPath
		if !filepath.IsAbs(candidate) {
			if wd, err := os.Getwd(); err == nil {
				candidate = filepath.Join(wd, candidate)
			}
		}
	default:
		p, err := exec.LookPath("ffmpeg")
		if err != nil {
			return Decoder{}, apperr.Wrap(apperr.KindConfiguration, err, "ffmpeg not found in PATH")
		}
		candidate = p
	}

	fi, err := os.Stat(candidate)
	if err != nil {
		return Decoder{}, apperr.Wrapf(apperr.KindConfiguration, err, "ffmpeg not found at %s", candidate)
	}
	if fi.IsDir() {
		return Decoder{}, apperr.New(apperr.KindConfiguration, "ffmpeg path is a directory: "+candidate)
	}

	ensureExecutable(candidate, fi.Mode())

	logrus.Debugf("ffmpeg 解析为 %s", candidate)
	return Decoder{path: candidate}, nil
}

// ensureExecutable 缺少执行权限时尝试补上。
// 托管环境下文件系统可能只读，失败只记录日志。
func ensureExecutable(path string, mode os.FileMode) {
	if mode&0o111 != 0 {
		return
	}
	if err := os.Chmod(path, 0o755); err != nil {
		logrus.Warnf("无法为 %s 设置执行权限: %v", path, err)
		return
	}
	logrus.Infof("已为 %s 添加执行权限", path)
}
