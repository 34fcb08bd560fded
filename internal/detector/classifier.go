package detector

import "wisefido-motion/internal/models"

// 判定阈值
const (
	FallVerticalDistributionMax = 0.3  // 垂直分布低于此值视为躺倒
	FallMotionMin               = 0.6  // 运动值高于此值视为剧烈动作
	MotionCandidateMin          = 0.85 // Warning 状态下额外产生 motion_detected 候选
	thresholdBasePct            = 70 // 0.7
	thresholdRangePct           = 40 // 0.4
)

// AdjustedThreshold 灵敏度对应的运动阈值，范围 [0.3, 0.7]，随灵敏度单调不增
func AdjustedThreshold(sensitivity float64) float64 {
	// 按百分数计算，保证灵敏度 50 时阈值恰为 0.5
	s := models.ClampSensitivity(sensitivity)
	return (thresholdBasePct - s*thresholdRangePct/100) / 100
}

// Classify 按优先级对单个样本分类（无状态，只依赖当前样本与配置）
func Classify(sample models.MotionSample, cfg models.DetectionConfig) (models.DetectionStatus, []models.AlertCandidate) {
	if cfg.EnableFallDetection &&
		sample.VerticalDistribution < FallVerticalDistributionMax &&
		sample.NormalizedMotionValue > FallMotionMin {
		return models.StatusAlert, []models.AlertCandidate{FallCandidate()}
	}

	if sample.NormalizedMotionValue > AdjustedThreshold(cfg.Sensitivity) {
		if sample.NormalizedMotionValue > MotionCandidateMin {
			return models.StatusWarning, []models.AlertCandidate{MotionCandidate()}
		}
		return models.StatusWarning, nil
	}

	return models.StatusNormal, nil
}

// FallCandidate 跌倒报警候选
func FallCandidate() models.AlertCandidate {
	return models.AlertCandidate{
		Type:     models.AlertTypeFallDetected,
		Severity: models.SeverityCritical,
		Title:    "Fall Detected",
		Message:  "Potential fall detected in the monitoring area. Please check immediately.",
	}
}

// MotionCandidate 异常运动报警候选
func MotionCandidate() models.AlertCandidate {
	return models.AlertCandidate{
		Type:     models.AlertTypeMotionDetected,
		Severity: models.SeverityWarning,
		Title:    "Unusual Movement Detected",
		Message:  "Sustained high motion detected in the monitoring area.",
	}
}
