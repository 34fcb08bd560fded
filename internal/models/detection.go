package models

// DetectionConfig 检测配置（运营人员可随时修改，每个 tick 重新读取）
type DetectionConfig struct {
	Sensitivity          float64 `json:"sensitivity"` // [0,100]
	EnableFallDetection  bool    `json:"enable_fall_detection"`
	EnableMotionTracking bool    `json:"enable_motion_tracking"`
	SamplingIntervalMs   int     `json:"sampling_interval_ms"` // > 0
}

// ClampSensitivity 将灵敏度限制在 [0,100]
func ClampSensitivity(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// DetectionStatus 瞬时检测状态
type DetectionStatus string

const (
	StatusNormal  DetectionStatus = "normal"
	StatusWarning DetectionStatus = "warning"
	StatusAlert   DetectionStatus = "alert"
)

// Level 状态等级，用于比较严重程度
func (s DetectionStatus) Level() int {
	switch s {
	case StatusWarning:
		return 1
	case StatusAlert:
		return 2
	default:
		return 0
	}
}

// Label 状态显示文本
func (s DetectionStatus) Label() string {
	switch s {
	case StatusWarning:
		return "Unusual Movement Detected"
	case StatusAlert:
		return "Potential Fall Detected"
	default:
		return "Normal Activity"
	}
}
