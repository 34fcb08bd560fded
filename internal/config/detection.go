package config

import (
	"fmt"
	"sync"
	"wisefido-motion/internal/models"
)

// DetectionSettings 运行时检测配置（线程安全，每个 tick 读取最新值）
type DetectionSettings struct {
	mu  sync.RWMutex
	cfg models.DetectionConfig
}

// NewDetectionSettings 用服务配置中的默认值初始化
func NewDetectionSettings(cfg *Config) *DetectionSettings {
	s := &DetectionSettings{}
	s.cfg = models.DetectionConfig{
		Sensitivity:          models.ClampSensitivity(cfg.Detection.Sensitivity),
		EnableFallDetection:  cfg.Detection.EnableFallDetection,
		EnableMotionTracking: cfg.Detection.EnableMotionTracking,
		SamplingIntervalMs:   cfg.Detection.SamplingIntervalMs,
	}
	if s.cfg.SamplingIntervalMs <= 0 {
		s.cfg.SamplingIntervalMs = 500
	}
	return s
}

// Get 返回当前配置的副本
func (s *DetectionSettings) Get() models.DetectionConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Update 替换配置；灵敏度限制在 [0,100]，采样间隔必须为正
func (s *DetectionSettings) Update(next models.DetectionConfig) (models.DetectionConfig, error) {
	if next.SamplingIntervalMs <= 0 {
		return models.DetectionConfig{}, fmt.Errorf("sampling_interval_ms must be positive, got %d", next.SamplingIntervalMs)
	}
	next.Sensitivity = models.ClampSensitivity(next.Sensitivity)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = next
	return s.cfg, nil
}
