package motion

import (
	"math"

	"wisefido-motion/internal/models"

	"gonum.org/v1/gonum/stat"
)

const (
	// DefaultAlpha EWMA 平滑系数（新值权重）
	DefaultAlpha = 0.5
	// DefaultDisplacementScale 位移满量程：帧对角线的 5% 记为运动值 1
	DefaultDisplacementScale = 0.05
)

// EWMADisplacement 帧间关键点位移的指数加权平均
// 位移取前后两帧都有效的关键点的平均欧氏距离，按帧对角线归一化后除以 scale
func EWMADisplacement(alpha, scale float64) MotionFunc {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	if scale <= 0 {
		scale = DefaultDisplacementScale
	}
	return func(prev *State, cur *models.PoseEstimate) float64 {
		if prev == nil || prev.Pose == nil {
			return 0
		}
		raw, ok := Displacement(prev.Pose, cur)
		if !ok {
			// 无可对应的关键点，运动值按衰减处理
			return clamp01((1 - alpha) * prev.Motion)
		}
		raw = clamp01(raw / scale)
		return clamp01(alpha*raw + (1-alpha)*prev.Motion)
	}
}

// Displacement 两帧间对应有效关键点的平均位移（按当前帧对角线归一化）
func Displacement(prev, cur *models.PoseEstimate) (float64, bool) {
	diag := math.Hypot(float64(cur.FrameWidth), float64(cur.FrameHeight))
	if diag == 0 {
		return 0, false
	}

	var dists []float64
	for _, kp := range cur.Keypoints {
		if kp.Confidence <= VisibilityThreshold {
			continue
		}
		p, ok := prev.Keypoint(kp.Name)
		if !ok || p.Confidence <= VisibilityThreshold {
			continue
		}
		dists = append(dists, math.Hypot(kp.Position.X-p.Position.X, kp.Position.Y-p.Position.Y))
	}
	if len(dists) == 0 {
		return 0, false
	}
	return stat.Mean(dists, nil) / diag, true
}
