// file: cmd/pluginlens/config.go

package main

import (
	"PluginLens/internal/core/domain"
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	LogLevel     string   `mapstructure:"log_level"`
	AccessLog    bool     `mapstructure:"access_log"`
	AllowOrigins []string `mapstructure:"allow_origins"`
	PprofAddr    string   `mapstructure:"pprof_addr"`
	// AdminKey 管理令牌的签名密钥，为空时控制平面不鉴权
	AdminKey string `mapstructure:"admin_key"`
}

type RateLimitConfig struct {
	PerIP       float64 `mapstructure:"per_ip"`
	Burst       int     `mapstructure:"burst"`
	Global      float64 `mapstructure:"global"`
	GlobalBurst int     `mapstructure:"global_burst"`
}

type DirectoryConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	MaxRetries        uint64  `mapstructure:"max_retries"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	UserAgent         string  `mapstructure:"user_agent"`
	DetailConcurrency int     `mapstructure:"detail_concurrency"`
}

type CacheConfig struct {
	// Backend 取值 sqlite 或 memory
	Backend        string `mapstructure:"backend"`
	RetentionHours int    `mapstructure:"retention_hours"`
	JanitorMinutes int    `mapstructure:"janitor_minutes"`
	FrontSize      int    `mapstructure:"front_size"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// Config 是 configs/config.yaml 的完整结构。algorithm 段单独解析，见 algorithmConfig。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "INFO")
	v.SetDefault("server.access_log", true)
	v.SetDefault("server.admin_key", "")
	v.SetDefault("rate_limit.per_ip", 5.0)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("directory.timeout_seconds", 10)
	v.SetDefault("directory.max_retries", 3)
	v.SetDefault("directory.requests_per_second", 5.0)
	v.SetDefault("directory.burst", 5)
	v.SetDefault("directory.detail_concurrency", 4)
	v.SetDefault("cache.backend", "sqlite")
	v.SetDefault("cache.retention_hours", 24)
	v.SetDefault("cache.janitor_minutes", 30)
	v.SetDefault("cache.front_size", 512)
	v.SetDefault("database.path", "instance/pluginlens.db")
}

// newViper 读取配置文件与 PLUGINLENS_ 前缀的环境变量。path 为空时只使用默认值与环境变量。
func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("PLUGINLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		return v, nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件 '%s' 失败: %w", path, err)
	}
	return v, nil
}

func loadConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("解析配置到结构体失败: %w", err)
	}
	switch cfg.Cache.Backend {
	case "sqlite", "memory":
	default:
		return Config{}, fmt.Errorf("cache.backend 只能是 sqlite 或 memory，得到 '%s'", cfg.Cache.Backend)
	}
	return cfg, nil
}

// algorithmConfig 在出厂配置之上叠加 algorithm 段。
// 权重表整体替换而不是逐项合并，避免新旧两份权重混在一起。
func algorithmConfig(v *viper.Viper) (domain.AlgorithmConfig, error) {
	cfg := domain.DefaultAlgorithmConfig()
	if !v.IsSet("algorithm") {
		return cfg, nil
	}
	if v.IsSet("algorithm.usability_weights") {
		cfg.UsabilityWeights = nil
	}
	if v.IsSet("algorithm.health_weights") {
		cfg.HealthWeights = nil
	}
	if err := v.UnmarshalKey("algorithm", &cfg); err != nil {
		return domain.AlgorithmConfig{}, fmt.Errorf("解析 algorithm 配置段失败: %w", err)
	}
	return cfg, nil
}

// equalAlgorithm 判断两份配置的内容是否相同，用于忽略没有实际变化的文件写入
func equalAlgorithm(a, b domain.AlgorithmConfig) bool {
	return reflect.DeepEqual(a, b)
}
