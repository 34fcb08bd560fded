package motion

import (
	"testing"

	"wisefido-motion/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shifted(p *models.PoseEstimate, dx float64) *models.PoseEstimate {
	out := *p
	out.Keypoints = make([]models.Keypoint, len(p.Keypoints))
	for i, kp := range p.Keypoints {
		kp.Position.X += dx
		out.Keypoints[i] = kp
	}
	return &out
}

func TestDisplacement(t *testing.T) {
	a := buildPose(0.9, nil)
	b := shifted(a, 80) // 640x480 对角线为 800

	d, ok := Displacement(a, b)
	require.True(t, ok)
	assert.InDelta(t, 0.1, d, 1e-9)

	_, ok = Displacement(buildPose(0.1, nil), b)
	assert.False(t, ok, "no keypoint valid in both frames")
}

func TestEWMADisplacement(t *testing.T) {
	fn := EWMADisplacement(0.5, 0.2)
	a := buildPose(0.9, nil)
	b := shifted(a, 80) // 原始位移 0.1 / 0.2 = 0.5

	assert.Equal(t, 0.0, fn(nil, a))

	v := fn(&State{Pose: a, Motion: 0}, b)
	assert.InDelta(t, 0.25, v, 1e-9)

	v = fn(&State{Pose: a, Motion: v}, b)
	assert.InDelta(t, 0.375, v, 1e-9)

	// 无对应关键点时衰减
	v = fn(&State{Pose: buildPose(0, nil), Motion: 0.4}, b)
	assert.InDelta(t, 0.2, v, 1e-9)
}

func TestEWMADisplacement_Deterministic(t *testing.T) {
	fn := EWMADisplacement(DefaultAlpha, DefaultDisplacementScale)
	a := buildPose(0.9, nil)
	b := shifted(a, 13)
	prev := &State{Pose: a, Motion: 0.3}

	assert.Equal(t, fn(prev, b), fn(prev, b))
}

func TestEWMADisplacement_ClampsLargeMotion(t *testing.T) {
	fn := EWMADisplacement(1, 0.05)
	a := buildPose(0.9, nil)
	v := fn(&State{Pose: a}, shifted(a, 600))
	assert.Equal(t, 1.0, v)
}
