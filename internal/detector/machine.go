package detector

import "wisefido-motion/internal/models"

// Machine 检测状态机：分类 + 可选去抖
// 报警候选直接来自分类结果，不经过去抖
type Machine struct {
	debouncer *Debouncer
}

// NewMachine 创建状态机；debounceTicks <= 1 表示不去抖
func NewMachine(debounceTicks int) *Machine {
	return &Machine{debouncer: NewDebouncer(debounceTicks, true)}
}

// Evaluate 处理一个样本，返回对外状态与报警候选
func (m *Machine) Evaluate(sample models.MotionSample, cfg models.DetectionConfig) (models.DetectionStatus, []models.AlertCandidate) {
	status, candidates := Classify(sample, cfg)
	return m.debouncer.Update(status), candidates
}

// Status 当前对外状态
func (m *Machine) Status() models.DetectionStatus {
	return m.debouncer.Current()
}

// Reset 新的监控运行开始时调用
func (m *Machine) Reset() {
	m.debouncer.Reset()
}
