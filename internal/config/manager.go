package config

import (
	"fmt"
	"log"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ConfigManager 统一配置管理器
type ConfigManager struct {
	mu           sync.RWMutex
	agentConfig  *AgentConfig
	agentViper   *viper.Viper
	configPath   string
	watchEnabled bool
}

// ConfigManagerOption 配置管理器选项
type ConfigManagerOption func(*ConfigManager)

// WithConfigPath 设置配置文件路径
func WithConfigPath(path string) ConfigManagerOption {
	return func(cm *ConfigManager) {
		cm.configPath = path
	}
}

// WithWatchEnabled 启用配置文件监控
func WithWatchEnabled(enabled bool) ConfigManagerOption {
	return func(cm *ConfigManager) {
		cm.watchEnabled = enabled
	}
}

// NewConfigManager 创建配置管理器
func NewConfigManager(opts ...ConfigManagerOption) *ConfigManager {
	cm := &ConfigManager{}
	for _, opt := range opts {
		opt(cm)
	}
	return cm
}

// LoadAgentConfig 加载跟踪代理配置
func (cm *ConfigManager) LoadAgentConfig() (*AgentConfig, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.agentConfig != nil {
		return cm.agentConfig, nil
	}

	config, viperInstance, err := loadConfigFromFile(cm.configPath)
	if err != nil {
		return nil, fmt.Errorf("加载跟踪代理配置失败: %w", err)
	}

	cm.agentConfig = config
	cm.agentViper = viperInstance

	if cm.watchEnabled {
		cm.watchAgentConfig()
	}

	return cm.agentConfig, nil
}

// GetAgentConfig 获取已加载的配置，未加载时返回nil
func (cm *ConfigManager) GetAgentConfig() *AgentConfig {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return cm.agentConfig
}

// watchAgentConfig 监控配置文件变化并热重载
func (cm *ConfigManager) watchAgentConfig() {
	cm.agentViper.OnConfigChange(func(e fsnotify.Event) {
		log.Printf("🔄 配置文件变化: %s", e.Name)

		var newConfig AgentConfig
		if err := cm.agentViper.Unmarshal(&newConfig); err != nil {
			log.Printf("⚠️  配置重载失败，保留旧配置: %v", err)
			return
		}
		if err := validateConfig(&newConfig); err != nil {
			log.Printf("⚠️  新配置校验失败，保留旧配置: %v", err)
			return
		}

		cm.mu.Lock()
		cm.agentConfig = &newConfig
		cm.mu.Unlock()

		log.Printf("✅ 配置已热重载")
	})
	cm.agentViper.WatchConfig()
}
