package zlog

import (
	"fmt"
	"time"

	"github.com/spf13/viper" // 配置管理工具库
)

// 本地轮转文件策略
type FileConfig struct {
	Path       string `mapstructure:"path"`        // 日志文件路径
	MaxSizeMB  int    `mapstructure:"max_size"`    // 单个日志文件最大容量（MB）
	MaxBackups int    `mapstructure:"max_backups"` // 保留旧文件数量
	MaxAgeDay  int    `mapstructure:"max_age"`     // 最长保存天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧日志文件
}

// 日志配置，对应服务配置文件里的 log 段
type Config struct {
	Service      string     `mapstructure:"service"`       // 归属服务名
	Level        string     `mapstructure:"level"`         // 日志级别，debug|info|warn|error
	Encoding     string     `mapstructure:"encoding"`      // 输出格式，json|console
	Stdout       bool       `mapstructure:"stdout"`        // 是否把日志同时输出到控制台
	File         FileConfig `mapstructure:"file"`          // 文件相关配置
	EnableMetric bool       `mapstructure:"enable_metric"` // 是否上报 Prometheus 指标
}

// DefaultConfig 只输出到控制台，测试和本地调试用
func DefaultConfig(service string) Config {
	return Config{
		Service:  service,
		Level:    "info",
		Encoding: "console",
		Stdout:   true,
	}
}

// LoadConfig 从服务配置文件的 log 段加载日志配置
func LoadConfig(filePath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filePath)

	// 在配置文件中找不到某个配置项时，去查 ZLOG_ 开头的环境变量
	v.AutomaticEnv()
	v.SetEnvPrefix("ZLOG")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取日志配置文件失败：%w", err)
	}

	sub := v.Sub("log")
	if sub == nil {
		sub = viper.New()
	}
	return decodeConfig(sub)
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	v.SetDefault("service", "unknown")
	v.SetDefault("level", "info")
	v.SetDefault("encoding", "json")
	v.SetDefault("stdout", true)
	v.SetDefault("file.max_size", 100)
	v.SetDefault("file.max_backups", 60)
	v.SetDefault("file.max_age", 1)
	v.SetDefault("enable_metric", true)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("加载日志配置失败：%w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Service == "" {
		return fmt.Errorf("配置错误：service 不能为空")
	}

	if !validLevel(cfg.Level) {
		return fmt.Errorf("配置错误：level 只能是 debug/info/warn/error")
	}

	switch cfg.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("配置错误：encoding 只能是 json/console")
	}

	// 启用了 stdout 时允许不设置文件路径
	if !cfg.Stdout && cfg.File.Path == "" {
		return fmt.Errorf("配置错误：stdout 为 false 时，file.path 不能为空")
	}

	if cfg.File.Path != "" {
		if cfg.File.MaxSizeMB <= 0 {
			cfg.File.MaxSizeMB = 100
		}
		if cfg.File.MaxBackups < 0 {
			cfg.File.MaxBackups = 60
		}
		if cfg.File.MaxAgeDay < 0 {
			cfg.File.MaxAgeDay = 30
		}
	}
	return nil
}

func LogFilenameWithDate(base string) string {
	return base + "." + time.Now().Format("2006-01-02")
}
