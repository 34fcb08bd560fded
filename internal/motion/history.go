package motion

import "sync"

// DefaultHistorySize 运动历史默认长度
const DefaultHistorySize = 20

// History 固定容量的运动值环形缓冲（并发安全）
type History struct {
	mu   sync.RWMutex
	data []float64
	pos  int
	full bool
}

// NewHistory 创建运动历史
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{data: make([]float64, size)}
}

// Push 追加一个运动值
func (h *History) Push(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.data[h.pos] = v
	h.pos++
	if h.pos >= len(h.data) {
		h.pos = 0
		h.full = true
	}
}

// Len 当前元素数
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lenLocked()
}

func (h *History) lenLocked() int {
	if h.full {
		return len(h.data)
	}
	return h.pos
}

// Values 按写入顺序返回（最旧在前）
func (h *History) Values() []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]float64, h.lenLocked())
	if h.full {
		copy(out, h.data[h.pos:])
		copy(out[len(h.data)-h.pos:], h.data[:h.pos])
	} else {
		copy(out, h.data[:h.pos])
	}
	return out
}

// Reset 清空
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pos = 0
	h.full = false
}
