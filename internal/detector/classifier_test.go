package detector

import (
	"testing"

	"wisefido-motion/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig() models.DetectionConfig {
	return models.DetectionConfig{
		Sensitivity:          50,
		EnableFallDetection:  true,
		EnableMotionTracking: true,
		SamplingIntervalMs:   500,
	}
}

func TestAdjustedThreshold_RangeAndMonotonic(t *testing.T) {
	prev := AdjustedThreshold(0)
	assert.InDelta(t, 0.7, prev, 1e-12)
	assert.InDelta(t, 0.3, AdjustedThreshold(100), 1e-12)
	assert.InDelta(t, 0.5, AdjustedThreshold(50), 1e-12)

	for s := 0.0; s <= 100; s += 0.5 {
		th := AdjustedThreshold(s)
		assert.GreaterOrEqual(t, th, 0.3-1e-12)
		assert.LessOrEqual(t, th, 0.7+1e-12)
		assert.LessOrEqual(t, th, prev+1e-12, "sensitivity %v", s)
		prev = th
	}
}

func TestAdjustedThreshold_ClampsSensitivity(t *testing.T) {
	assert.Equal(t, AdjustedThreshold(0), AdjustedThreshold(-20))
	assert.Equal(t, AdjustedThreshold(100), AdjustedThreshold(250))
}

func TestClassify_Fall(t *testing.T) {
	sample := models.MotionSample{VerticalDistribution: 0.2, NormalizedMotionValue: 0.8}

	status, candidates := Classify(sample, defaultConfig())
	assert.Equal(t, models.StatusAlert, status)
	require.Len(t, candidates, 1)
	assert.Equal(t, models.AlertTypeFallDetected, candidates[0].Type)
	assert.Equal(t, models.SeverityCritical, candidates[0].Severity)
}

func TestClassify_FallDetectionDisabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.EnableFallDetection = false
	sample := models.MotionSample{VerticalDistribution: 0.2, NormalizedMotionValue: 0.8}

	status, candidates := Classify(sample, cfg)
	assert.NotEqual(t, models.StatusAlert, status)
	assert.Equal(t, models.StatusWarning, status)
	assert.Empty(t, candidates)
}

func TestClassify_ThresholdIsExclusive(t *testing.T) {
	tests := []struct {
		name   string
		value  float64
		want   models.DetectionStatus
		motion bool
	}{
		{name: "at threshold", value: 0.5, want: models.StatusNormal},
		{name: "just above threshold", value: 0.51, want: models.StatusWarning},
		{name: "high but below candidate", value: 0.8, want: models.StatusWarning},
		{name: "at candidate boundary", value: 0.85, want: models.StatusWarning},
		{name: "above candidate boundary", value: 0.9, want: models.StatusWarning, motion: true},
		{name: "still", value: 0, want: models.StatusNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// 垂直分布足够大，不触发跌倒规则
			sample := models.MotionSample{VerticalDistribution: 0.6, NormalizedMotionValue: tt.value}
			status, candidates := Classify(sample, defaultConfig())
			assert.Equal(t, tt.want, status)
			if tt.motion {
				require.Len(t, candidates, 1)
				assert.Equal(t, models.AlertTypeMotionDetected, candidates[0].Type)
				assert.Equal(t, models.SeverityWarning, candidates[0].Severity)
			} else {
				assert.Empty(t, candidates)
			}
		})
	}
}

func TestClassify_FallRuleBoundaries(t *testing.T) {
	cfg := defaultConfig()

	status, _ := Classify(models.MotionSample{VerticalDistribution: 0.3, NormalizedMotionValue: 0.8}, cfg)
	assert.Equal(t, models.StatusWarning, status, "vertical distribution 0.3 is not below 0.3")

	status, _ = Classify(models.MotionSample{VerticalDistribution: 0.1, NormalizedMotionValue: 0.6}, cfg)
	assert.Equal(t, models.StatusWarning, status, "motion 0.6 is not above 0.6")
}

func TestClassify_SensitivityShiftsThreshold(t *testing.T) {
	cfg := defaultConfig()
	sample := models.MotionSample{VerticalDistribution: 0.6, NormalizedMotionValue: 0.4}

	cfg.Sensitivity = 0
	status, _ := Classify(sample, cfg)
	assert.Equal(t, models.StatusNormal, status)

	cfg.Sensitivity = 100
	status, _ = Classify(sample, cfg)
	assert.Equal(t, models.StatusWarning, status)
}
