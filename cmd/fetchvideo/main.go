// fetchvideo 解析并下载一个视频地址（直链或 Loom 分享链接），打印本地路径和大小。
// 用于在不调用分析服务的情况下检查 CDN 解析是否可用。
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xpzouying/starpath/configs"
	"github.com/xpzouying/starpath/pkg/downloader"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		logrus.Errorf("下载失败: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("fetchvideo", flag.ContinueOnError)
	var (
		configPath string
		dir        string
		keep       bool
		timeout    time.Duration
	)
	fs.StringVar(&configPath, "config", "", "配置文件路径（YAML）")
	fs.StringVar(&dir, "dir", "", "保存目录，默认使用配置中的临时目录")
	fs.BoolVar(&keep, "keep", false, "下载完成后保留文件")
	fs.DurationVar(&timeout, "timeout", 5*time.Minute, "总超时时间")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: fetchvideo [flags] <video-url>")
	}

	cfg, err := configs.Load(configPath)
	if err != nil {
		return err
	}
	if dir == "" {
		dir = cfg.TempDir()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpClient := &http.Client{}
	loom := downloader.NewLoomResolver(httpClient,
		downloader.WithOEmbedEndpoint(cfg.Source.OEmbedEndpoint),
		downloader.WithCDNBaseURL(cfg.Source.CDNBaseURL),
		downloader.WithProbeTimeout(cfg.Source.ProbeTimeout),
	)
	d := downloader.NewVideoDownloader(dir, httpClient, loom)

	rawURL := fs.Arg(0)
	fmt.Fprintf(out, "Testing download for: %s\n", rawURL)

	video, err := d.Fetch(ctx, rawURL)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Video downloaded to: %s\n", video.Path)
	if video.ResolvedURL != "" {
		fmt.Fprintf(out, "Resolved URL: %s\n", video.ResolvedURL)
	}
	fmt.Fprintf(out, "File size: %.2f MB\n", float64(video.Size)/(1024*1024))

	if !keep {
		if err := video.Remove(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Temporary file cleaned up.")
	}
	return nil
}
