package detector

import (
	"sync"

	"wisefido-motion/internal/models"
)

// Debouncer 持续阈值状态机：新等级需连续出现 required 个 tick 才成为对外状态
// required <= 1 时等价于无状态分类
type Debouncer struct {
	mu             sync.Mutex
	required       int
	alertBypass    bool
	current        models.DetectionStatus
	candidate      models.DetectionStatus
	candidateTicks int
}

// NewDebouncer 创建去抖器；alertBypass 为 true 时升级到 Alert 不需要等待
func NewDebouncer(requiredTicks int, alertBypass bool) *Debouncer {
	if requiredTicks < 1 {
		requiredTicks = 1
	}
	return &Debouncer{
		required:    requiredTicks,
		alertBypass: alertBypass,
		current:     models.StatusNormal,
		candidate:   models.StatusNormal,
	}
}

// Update 输入本 tick 的分类结果，返回对外状态
func (d *Debouncer) Update(status models.DetectionStatus) models.DetectionStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.alertBypass && status == models.StatusAlert {
		d.current = status
		d.candidate = status
		d.candidateTicks = 0
		return d.current
	}

	if status == d.candidate {
		d.candidateTicks++
	} else {
		d.candidate = status
		d.candidateTicks = 1
	}

	if d.candidateTicks >= d.required && d.candidate != d.current {
		d.current = d.candidate
	}
	return d.current
}

// Current 当前对外状态
func (d *Debouncer) Current() models.DetectionStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Reset 回到 Normal
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = models.StatusNormal
	d.candidate = models.StatusNormal
	d.candidateTicks = 0
}
