package motion

import (
	"wisefido-motion/internal/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// VisibilityThreshold 关键点有效的置信度下限（严格大于）
const VisibilityThreshold = 0.3

// State 上一个样本的状态（用于计算帧间运动）
type State struct {
	Pose   *models.PoseEstimate
	Motion float64
}

// MotionFunc 由上一状态与当前姿态计算 [0,1] 的运动值；prev 为 nil 表示本次运行的第一个样本
type MotionFunc func(prev *State, cur *models.PoseEstimate) float64

// Calculator 运动指标计算器（纯函数，无内部状态）
type Calculator struct {
	motionFn MotionFunc
}

// NewCalculator 创建计算器；motionFn 为 nil 时使用默认 EWMA 位移
func NewCalculator(motionFn MotionFunc) *Calculator {
	if motionFn == nil {
		motionFn = EWMADisplacement(DefaultAlpha, DefaultDisplacementScale)
	}
	return &Calculator{motionFn: motionFn}
}

// Compute 将姿态估计转换为运动样本
// 没有任何有效关键点时返回 ok=false（跳过本次 tick）
func (c *Calculator) Compute(pose *models.PoseEstimate, prev *State) (models.MotionSample, bool) {
	if pose == nil || len(pose.Keypoints) == 0 {
		return models.MotionSample{}, false
	}

	confidences := make([]float64, len(pose.Keypoints))
	var validY []float64
	for i, kp := range pose.Keypoints {
		confidences[i] = kp.Confidence
		if kp.Confidence > VisibilityThreshold {
			validY = append(validY, kp.Position.Y)
		}
	}
	if len(validY) == 0 {
		return models.MotionSample{}, false
	}

	sample := models.MotionSample{
		AvgConfidence:         clamp01(stat.Mean(confidences, nil)),
		VerticalDistribution:  verticalDistribution(validY, pose.FrameHeight),
		NormalizedMotionValue: clamp01(c.motionFn(prev, pose)),
		ActivityLabel:         ClassifyActivity(pose),
		ValidKeypoints:        len(validY),
	}
	return sample, true
}

// Next 构造下一个 tick 使用的状态
func Next(pose *models.PoseEstimate, sample models.MotionSample) *State {
	return &State{Pose: pose, Motion: sample.NormalizedMotionValue}
}

// verticalDistribution 有效关键点 y 跨度 / 帧高
func verticalDistribution(ys []float64, frameHeight int) float64 {
	if frameHeight <= 0 {
		return 0
	}
	span := floats.Max(ys) - floats.Min(ys)
	return clamp01(span / float64(frameHeight))
}

// ClassifyActivity 根据手腕与膝盖的上下关系给出粗粒度活动标签
// 图像 y 轴向下：手腕在两膝之上（y 更小）为 Sitting，在两膝之下为 Standing
func ClassifyActivity(pose *models.PoseEstimate) models.ActivityLabel {
	wrists := make([]float64, 0, 2)
	knees := make([]float64, 0, 2)
	for _, name := range []models.KeypointName{models.LeftWrist, models.RightWrist} {
		kp, ok := pose.Keypoint(name)
		if !ok || kp.Confidence <= VisibilityThreshold {
			return models.ActivityUnknown
		}
		wrists = append(wrists, kp.Position.Y)
	}
	for _, name := range []models.KeypointName{models.LeftKnee, models.RightKnee} {
		kp, ok := pose.Keypoint(name)
		if !ok || kp.Confidence <= VisibilityThreshold {
			return models.ActivityUnknown
		}
		knees = append(knees, kp.Position.Y)
	}

	switch {
	case floats.Max(wrists) < floats.Min(knees):
		return models.ActivitySitting
	case floats.Min(wrists) > floats.Max(knees):
		return models.ActivityStanding
	default:
		return models.ActivityUnknown
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
