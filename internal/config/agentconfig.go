package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// TraceCategoryListVersion 跟踪类别允许列表版本号。
// 列表必须与解析引擎期望的输入保持同步，版本号变更时同步检查解析端。
const TraceCategoryListVersion = "2025-07"

// defaultTraceCategories 低层捕获启用的固定类别允许列表
var defaultTraceCategories = []string{
	"blink.console",
	"blink.user_timing",
	"devtools.timeline",
	"disabled-by-default-devtools.timeline",
	"disabled-by-default-devtools.timeline.frame",
	"disabled-by-default-devtools.timeline.stack",
	"disabled-by-default-v8.cpu_profiler",
	"latencyInfo",
	"loading",
	"toplevel",
	"v8.execute",
}

// AgentConfig 跟踪代理统一配置结构
type AgentConfig struct {
	Meta    MetaConfig    `yaml:"meta" mapstructure:"meta"`
	CDP     CDPConfig     `yaml:"cdp" mapstructure:"cdp"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Archive ArchiveConfig `yaml:"archive" mapstructure:"archive"`
}

// MetaConfig 配置元信息
type MetaConfig struct {
	Project       string `yaml:"project" mapstructure:"project"`
	ConfigVersion string `yaml:"config_version" mapstructure:"config_version"`
}

// CDPConfig DevTools协议连接配置
type CDPConfig struct {
	Endpoint         string        `yaml:"endpoint" mapstructure:"endpoint"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" mapstructure:"handshake_timeout"`
	CallTimeout      time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
	Retry            RetryConfig   `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig 连接重试配置（指数退避）
type RetryConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval" mapstructure:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval" mapstructure:"max_interval"`
	MaxElapsedTime  time.Duration `yaml:"max_elapsed_time" mapstructure:"max_elapsed_time"`
}

// TracingConfig 录制行为配置
type TracingConfig struct {
	Categories        []string      `yaml:"categories" mapstructure:"categories"`
	AutoStopDelay     time.Duration `yaml:"auto_stop_delay" mapstructure:"auto_stop_delay"`
	BlankURL          string        `yaml:"blank_url" mapstructure:"blank_url"`
	QuiescenceTimeout time.Duration `yaml:"quiescence_timeout" mapstructure:"quiescence_timeout"`
	LoadTimeout       time.Duration `yaml:"load_timeout" mapstructure:"load_timeout"`
}

// ServerConfig HTTP操作面配置
type ServerConfig struct {
	ListenAddr     string        `yaml:"listen_addr" mapstructure:"listen_addr"`
	AllowedOrigins []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// ArchiveConfig 录制归档数据库配置（可选）
type ArchiveConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	DBName   string `yaml:"db_name" mapstructure:"db_name"`
	SSLMode  string `yaml:"ssl_mode" mapstructure:"ssl_mode"`
}

// loadConfigFromFile 使用Viper从文件加载配置
func loadConfigFromFile(path string) (*AgentConfig, *viper.Viper, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("trace-agent")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath(".")
	}

	// 环境变量前缀
	v.SetEnvPrefix("TRACE_AGENT")
	v.AutomaticEnv()

	setDefaultValues(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config AgentConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, nil, fmt.Errorf("配置校验失败: %w", err)
	}

	return &config, v, nil
}

// setDefaultValues 设置默认配置值
func setDefaultValues(v *viper.Viper) {
	// Meta默认值
	v.SetDefault("meta.project", "BrowserPerfTraceKit")
	v.SetDefault("meta.config_version", "1.0.0")

	// CDP默认值
	v.SetDefault("cdp.endpoint", "ws://127.0.0.1:9222/devtools/page")
	v.SetDefault("cdp.handshake_timeout", "10s")
	v.SetDefault("cdp.call_timeout", "30s")
	v.SetDefault("cdp.retry.initial_interval", "500ms")
	v.SetDefault("cdp.retry.max_interval", "5s")
	v.SetDefault("cdp.retry.max_elapsed_time", "30s")

	// Tracing默认值
	v.SetDefault("tracing.categories", defaultTraceCategories)
	v.SetDefault("tracing.auto_stop_delay", "5s")
	v.SetDefault("tracing.blank_url", "about:blank")
	v.SetDefault("tracing.quiescence_timeout", "5s")
	v.SetDefault("tracing.load_timeout", "30s")

	// Server默认值
	v.SetDefault("server.listen_addr", ":8460")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")

	// Archive默认值
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.host", "localhost")
	v.SetDefault("archive.port", 5432)
	v.SetDefault("archive.user", "postgres")
	v.SetDefault("archive.db_name", "postgres")
	v.SetDefault("archive.ssl_mode", "disable")
}

// validateConfig 校验配置合法性
func validateConfig(config *AgentConfig) error {
	if config.CDP.Endpoint == "" {
		return fmt.Errorf("cdp.endpoint不能为空")
	}
	if len(config.Tracing.Categories) == 0 {
		return fmt.Errorf("tracing.categories不能为空")
	}
	if config.Tracing.AutoStopDelay <= 0 {
		return fmt.Errorf("tracing.auto_stop_delay必须为正: %v", config.Tracing.AutoStopDelay)
	}
	if config.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr不能为空")
	}
	if config.Archive.Enabled && config.Archive.Host == "" {
		return fmt.Errorf("归档启用时archive.host不能为空")
	}
	return nil
}

// DefaultTraceCategories 返回允许列表副本，防止调用方修改共享切片
func DefaultTraceCategories() []string {
	out := make([]string, len(defaultTraceCategories))
	copy(out, defaultTraceCategories)
	return out
}
