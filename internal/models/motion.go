package models

// ActivityLabel 粗粒度活动标签
type ActivityLabel string

const (
	ActivitySitting  ActivityLabel = "Sitting"
	ActivityStanding ActivityLabel = "Standing"
	ActivityUnknown  ActivityLabel = "Unknown"
)

// MotionSample 由姿态估计推导出的运动样本
type MotionSample struct {
	AvgConfidence         float64       `json:"avg_confidence"`
	VerticalDistribution  float64       `json:"vertical_distribution"`
	NormalizedMotionValue float64       `json:"normalized_motion_value"`
	ActivityLabel         ActivityLabel `json:"activity_label"`
	ValidKeypoints        int           `json:"valid_keypoints"`
}
