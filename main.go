package main

import (
	"flag"

	"github.com/sirupsen/logrus"

	"github.com/xpzouying/starpath/configs"
)

func main() {
	var (
		configPath string
		ffmpegPath string // ffmpeg 可执行文件路径
		port       string
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径（YAML）")
	flag.StringVar(&ffmpegPath, "ffmpeg", "", "ffmpeg 可执行文件路径")
	flag.StringVar(&port, "port", "", "端口，默认 :18070")
	flag.Parse()

	cfg, err := configs.Load(configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}
	if port != "" {
		cfg.Port = port
	}
	if ffmpegPath != "" {
		cfg.Decoder.Path = ffmpegPath
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.Warnf("无效的日志级别 %q，使用 info", cfg.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("配置错误: %v", err)
	}

	// ffmpeg 路径只在启动时解析一次，之后作为只读值注入各组件
	decoder, err := configs.ResolveDecoder(cfg)
	if err != nil {
		logrus.Fatalf("配置错误: %v", err)
	}
	logrus.Infof("使用 ffmpeg: %s (managed=%v, 运行期限 %s)", decoder.Path(), cfg.Managed, cfg.RunTimeout())

	generatorService, err := NewGeneratorService(cfg, decoder, NewMetrics())
	if err != nil {
		logrus.Fatalf("初始化服务失败: %v", err)
	}

	appServer := NewAppServer(generatorService)
	if err := appServer.Start(cfg.Port); err != nil {
		logrus.Fatalf("failed to run server: %v", err)
	}
}
