// internal/services/config_service.go
package services

import (
	"errors"
	"sync"
	"time"

	"github.com/MedVisage/IVAStudioMCP/internal/config"
	"github.com/MedVisage/IVAStudioMCP/internal/utils"
)

// ConfigService 提供配置管理功能
type ConfigService struct {
	// 缓存最近获取的配置，减少反复访问底层存储
	cachedConfig *config.AppConfig

	// 配置更新时间
	lastUpdated time.Time

	mu sync.RWMutex
}

// NewConfigService 创建配置服务实例
func NewConfigService() *ConfigService {
	service := &ConfigService{
		lastUpdated: time.Now(),
	}

	// 初始化时加载配置到缓存
	service.cachedConfig = config.GetCurrentConfig()

	return service
}

// GetCurrentConfig 获取当前配置
func (s *ConfigService) GetCurrentConfig() *config.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cachedConfig == nil {
		s.cachedConfig = config.GetCurrentConfig()
	}

	return s.cachedConfig
}

// UpdateLLMConfig 更新LLM提供商和配置
func (s *ConfigService) UpdateLLMConfig(provider string, configMap map[string]string) error {
	if provider == "" {
		return errors.New("provider cannot be empty")
	}

	if _, ok := configMap["api_key"]; !ok {
		utils.GetLogger().Warn("LLM config missing api_key", nil)
	}

	// 确保有默认模型
	if _, ok := configMap["default_model"]; !ok {
		switch provider {
		case "anthropic":
			configMap["default_model"] = "claude-3-5-haiku-20241022"
		case "openrouter":
			configMap["default_model"] = "anthropic/claude-3.5-haiku"
		}
	}

	if err := config.UpdateLLMConfig(provider, configMap); err != nil {
		return err
	}

	s.mu.Lock()
	s.cachedConfig = config.GetCurrentConfig()
	s.lastUpdated = time.Now()
	s.mu.Unlock()

	return nil
}

// LastUpdated 返回配置最近一次更新时间
func (s *ConfigService) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}
