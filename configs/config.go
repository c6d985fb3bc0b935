package configs

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/xpzouying/starpath/pkg/apperr"
)

const (
	envConfigPath = "STARPATH_CONFIG"
	envEnv        = "STARPATH_ENV"
	envAPIKey     = "ANTHROPIC_API_KEY"
	envFFmpeg     = "FFMPEG_PATH"
	envLogLevel   = "STARPATH_LOG_LEVEL"
)

// Config 应用配置
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// Managed 托管（生产）部署：文件系统除临时目录外可能只读
	Managed bool `yaml:"managed"`

	Decoder  DecoderConfig  `yaml:"decoder"`
	Sampling SamplingConfig `yaml:"sampling"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Source   SourceConfig   `yaml:"source"`
	Prompt   PromptConfig   `yaml:"prompt"`
}

type DecoderConfig struct {
	// Path 显式指定的 ffmpeg 路径，为空时自动查找
	Path string `yaml:"path"`
	// ManagedPath 托管部署下随包携带的 ffmpeg，相对工作目录
	ManagedPath string `yaml:"managed_path"`
}

type SamplingConfig struct {
	FrameCount int    `yaml:"frame_count"`
	Quality    int    `yaml:"quality"`
	ScaleWidth int    `yaml:"scale_width"`
	DebugDir   string `yaml:"debug_dir"`
}

type PipelineConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	ManagedTimeout    time.Duration `yaml:"managed_timeout"`
	MaxConcurrentRuns int           `yaml:"max_concurrent_runs"`
	TempDir           string        `yaml:"temp_dir"`
}

type AnalysisConfig struct {
	APIKey    string        `yaml:"-"`
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	MaxTokens int64         `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

type SourceConfig struct {
	OEmbedEndpoint string        `yaml:"oembed_endpoint"`
	CDNBaseURL     string        `yaml:"cdn_base_url"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
}

type PromptConfig struct {
	Framework  string `yaml:"framework"`
	TestRunner string `yaml:"test_runner"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Port:     ":18070",
		LogLevel: "info",
		Decoder: DecoderConfig{
			ManagedPath: filepath.Join("bin", "ffmpeg"),
		},
		Sampling: SamplingConfig{
			FrameCount: 30,
			Quality:    2,
			ScaleWidth: 1280,
			DebugDir:   filepath.Join("public", "debug-frames"),
		},
		Pipeline: PipelineConfig{
			Timeout:           6 * time.Minute,
			ManagedTimeout:    290 * time.Second,
			MaxConcurrentRuns: 2,
		},
		Analysis: AnalysisConfig{
			Model:     "claude-sonnet-4-5",
			MaxTokens: 4096,
			Timeout:   3 * time.Minute,
		},
		Source: SourceConfig{
			OEmbedEndpoint: "https://www.loom.com/v1/oembed",
			CDNBaseURL:     "https://cdn.loom.com",
			ProbeTimeout:   10 * time.Second,
		},
		Prompt: PromptConfig{
			Framework:  "Next.js (App Router)",
			TestRunner: "Playwright",
		},
	}
}

// Load 读取配置：默认值 <- YAML 文件 <- 环境变量。
// path 为空时依次尝试 $STARPATH_CONFIG、./config.yaml、./config.yml，都不存在则只用默认值。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config %s", path)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(envAPIKey); v != "" {
		c.Analysis.APIKey = v
	}
	if v := os.Getenv(envFFmpeg); v != "" {
		c.Decoder.Path = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		c.LogLevel = v
	}
	if IsManagedEnv() {
		c.Managed = true
	}
}

// IsManagedEnv 根据环境变量判断是否运行在托管（生产）环境
func IsManagedEnv() bool {
	if strings.EqualFold(os.Getenv(envEnv), "production") {
		return true
	}
	return os.Getenv("VERCEL") != "" || os.Getenv("VERCEL_ENV") != ""
}

// RunTimeout 单次流水线运行的总期限
func (c *Config) RunTimeout() time.Duration {
	if c.Managed && c.Pipeline.ManagedTimeout > 0 {
		return c.Pipeline.ManagedTimeout
	}
	return c.Pipeline.Timeout
}

// DebugFramesDir 调试帧目录；托管部署下永远为空
func (c *Config) DebugFramesDir() string {
	if c.Managed {
		return ""
	}
	return c.Sampling.DebugDir
}

// TempDir 临时文件根目录
func (c *Config) TempDir() string {
	if c.Pipeline.TempDir != "" {
		return c.Pipeline.TempDir
	}
	return os.TempDir()
}

// Validate 校验启动必需项
func (c *Config) Validate() error {
	if c.Analysis.APIKey == "" {
		return apperr.New(apperr.KindConfiguration, envAPIKey+" environment variable is not set")
	}
	if c.Sampling.FrameCount < 2 {
		return apperr.New(apperr.KindConfiguration, "sampling.frame_count must be at least 2")
	}
	if c.Sampling.Quality < 1 || c.Sampling.Quality > 31 {
		return apperr.New(apperr.KindConfiguration, "sampling.quality must be within 1..31")
	}
	if c.Sampling.ScaleWidth <= 0 {
		return apperr.New(apperr.KindConfiguration, "sampling.scale_width must be positive")
	}
	if c.RunTimeout() <= 0 {
		return apperr.New(apperr.KindConfiguration, "pipeline.timeout must be positive")
	}
	if c.Pipeline.MaxConcurrentRuns < 1 {
		return apperr.New(apperr.KindConfiguration, "pipeline.max_concurrent_runs must be at least 1")
	}
	return nil
}

func findConfigFile() string {
	candidates := []string{
		os.Getenv(envConfigPath),
		"./config.yaml",
		"./config.yml",
	}
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
