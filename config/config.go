package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/feichai0017/word-typesetter/pkg/logger"
)

// DefaultAPIBaseURL 远程排版服务的默认地址
const DefaultAPIBaseURL = "https://word-typesetting-assistant.onrender.com"

// DefaultRules 用户未填写排版要求时使用的规则
const DefaultRules = "默认：标题黑体二号居中，正文宋体小四首行缩进"

var (
	appOnce   sync.Once
	appConfig *Config
	appErr    error
)

// Config 应用配置，先读 config.yaml，再用环境变量覆盖
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Formatter FormatterConfig `yaml:"formatter"`
	Download  DownloadConfig  `yaml:"download"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Minio     MinioConfig     `yaml:"minio"`
	S3        S3Config        `yaml:"s3"`
	Worker    WorkerConfig    `yaml:"worker"`
	Log       logger.Config   `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	PublicURL       string        `yaml:"publicUrl"`
	RedirectDelay   time.Duration `yaml:"redirectDelay"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	SessionTTL      time.Duration `yaml:"sessionTtl"`
}

type FormatterConfig struct {
	BaseURL        string        `yaml:"baseUrl"`
	DefaultRules   string        `yaml:"defaultRules"`
	ConvertTimeout time.Duration `yaml:"convertTimeout"`
	IdleNotice     time.Duration `yaml:"idleNotice"`
}

type DownloadConfig struct {
	SettleDelay    time.Duration `yaml:"settleDelay"`
	InterItemDelay time.Duration `yaml:"interItemDelay"`
}

type StorageConfig struct {
	// Type: memory | minio | s3
	Type      string        `yaml:"type"`
	Retention time.Duration `yaml:"retention"`
	LinkTTL   time.Duration `yaml:"linkTtl"`
}

type WorkerConfig struct {
	Concurrency     int    `yaml:"concurrency"`
	CleanupSchedule string `yaml:"cleanupSchedule"`
}

// Default 返回全部默认值
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			PublicURL:       "http://localhost:8080",
			RedirectDelay:   1500 * time.Millisecond,
			ShutdownTimeout: 5 * time.Second,
			SessionTTL:      24 * time.Hour,
		},
		Formatter: FormatterConfig{
			BaseURL:        DefaultAPIBaseURL,
			DefaultRules:   DefaultRules,
			ConvertTimeout: 2 * time.Minute,
			IdleNotice:     10 * time.Second,
		},
		Download: DownloadConfig{
			SettleDelay:    time.Second,
			InterItemDelay: 500 * time.Millisecond,
		},
		Storage: StorageConfig{
			Type:      "memory",
			Retention: 24 * time.Hour,
			LinkTTL:   time.Hour,
		},
		Redis: RedisConfig{
			ResultTTL: 24 * time.Hour,
		},
		Worker: WorkerConfig{
			Concurrency:     5,
			CleanupSchedule: "@every 1h",
		},
		Log: logger.Config{
			Level:       "info",
			Encoding:    "json",
			OutputPaths: []string{"stdout", "logs/app.log"},
		},
	}
}

// Load 读取配置文件（不存在时只用默认值），再加载 .env 和环境变量
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Warning: failed to load %s: %v", envPath, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Get 进程级单例，main 之外的地方不要用
func Get() (*Config, error) {
	appOnce.Do(func() {
		appConfig, appErr = Load(os.Getenv("CONFIG_PATH"))
	})
	return appConfig, appErr
}

// Validate 检查跨字段约束
func (c *Config) Validate() error {
	if c.Formatter.BaseURL == "" {
		return errors.New("formatter base url must be configured")
	}
	switch c.Storage.Type {
	case "memory", "minio", "s3":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	if c.Storage.Type == "minio" && c.Minio.BucketName == "" {
		return errors.New("minio bucket name must be configured")
	}
	if c.Storage.Type == "s3" && c.S3.BucketName == "" {
		return errors.New("s3 bucket name must be configured")
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Formatter.BaseURL, "API_BASE_URL")
	setString(&c.Formatter.DefaultRules, "DEFAULT_RULES")
	setString(&c.Server.Addr, "SERVER_ADDR")
	setString(&c.Server.PublicURL, "PUBLIC_URL")
	setString(&c.Storage.Type, "STORAGE_TYPE")
	setString(&c.Log.Level, "LOG_LEVEL")
	setDuration(&c.Server.RedirectDelay, "REDIRECT_DELAY")
	c.Redis.applyEnv()
	c.Minio.applyEnv()
	c.S3.applyEnv()
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
