package scheduler

import (
	"sync"
	"time"
)

// Stats 调度器运行指标快照
type Stats struct {
	TicksFired       int64 `json:"ticks_fired"`        // 计时器触发次数
	TicksSkippedBusy int64 `json:"ticks_skipped_busy"` // 上一次检测未完成而跳过
	TicksDisabled    int64 `json:"ticks_disabled"`     // 运动追踪关闭而跳过
	Unavailable      int64 `json:"unavailable"`        // 帧/姿态不可用
	SamplesSkipped   int64 `json:"samples_skipped"`    // 无有效关键点
	SamplesProcessed int64 `json:"samples_processed"`
	LateDiscarded    int64 `json:"late_discarded"` // 停止后到达的检测结果
	AlertsDispatched int64 `json:"alerts_dispatched"`
	AlertsFailed     int64 `json:"alerts_failed"`

	TotalDetectTime time.Duration `json:"total_detect_time"`
	LastTickAt      time.Time     `json:"last_tick_at"`
	StartTime       time.Time     `json:"start_time"`
}

// Metrics 监控指标（线程安全）
type Metrics struct {
	mu    sync.RWMutex
	stats Stats
}

// GetSnapshot 获取指标快照
func (m *Metrics) GetSnapshot() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

func (m *Metrics) update(fn func(s *Stats)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.stats)
}

func (m *Metrics) reset(now time.Time) {
	m.update(func(s *Stats) {
		*s = Stats{StartTime: now}
	})
}
