package detector

import (
	"testing"

	"wisefido-motion/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_SingleTickIsStateless(t *testing.T) {
	d := NewDebouncer(1, false)
	assert.Equal(t, models.StatusWarning, d.Update(models.StatusWarning))
	assert.Equal(t, models.StatusNormal, d.Update(models.StatusNormal))
	assert.Equal(t, models.StatusAlert, d.Update(models.StatusAlert))
}

func TestDebouncer_RequiresConsecutiveTicks(t *testing.T) {
	d := NewDebouncer(3, false)

	assert.Equal(t, models.StatusNormal, d.Update(models.StatusWarning))
	assert.Equal(t, models.StatusNormal, d.Update(models.StatusWarning))
	// 中断后重新计数
	assert.Equal(t, models.StatusNormal, d.Update(models.StatusNormal))
	assert.Equal(t, models.StatusNormal, d.Update(models.StatusWarning))
	assert.Equal(t, models.StatusNormal, d.Update(models.StatusWarning))
	assert.Equal(t, models.StatusWarning, d.Update(models.StatusWarning))

	// 降级同样需要持续
	assert.Equal(t, models.StatusWarning, d.Update(models.StatusNormal))
	assert.Equal(t, models.StatusWarning, d.Update(models.StatusNormal))
	assert.Equal(t, models.StatusNormal, d.Update(models.StatusNormal))
}

func TestDebouncer_AlertBypass(t *testing.T) {
	d := NewDebouncer(5, true)
	assert.Equal(t, models.StatusAlert, d.Update(models.StatusAlert))
	assert.Equal(t, models.StatusAlert, d.Current())

	d.Reset()
	assert.Equal(t, models.StatusNormal, d.Current())
}

func TestMachine_CandidatesAreNotDebounced(t *testing.T) {
	m := NewMachine(3)
	cfg := defaultConfig()
	sample := models.MotionSample{VerticalDistribution: 0.6, NormalizedMotionValue: 0.9}

	status, candidates := m.Evaluate(sample, cfg)
	assert.Equal(t, models.StatusNormal, status)
	require.Len(t, candidates, 1)
	assert.Equal(t, models.AlertTypeMotionDetected, candidates[0].Type)
}

func TestMachine_DefaultMatchesClassify(t *testing.T) {
	m := NewMachine(1)
	cfg := defaultConfig()
	samples := []models.MotionSample{
		{VerticalDistribution: 0.6, NormalizedMotionValue: 0.51},
		{VerticalDistribution: 0.2, NormalizedMotionValue: 0.8},
		{VerticalDistribution: 0.6, NormalizedMotionValue: 0.1},
		{VerticalDistribution: 0.6, NormalizedMotionValue: 0.9},
	}
	for _, s := range samples {
		wantStatus, wantCandidates := Classify(s, cfg)
		status, candidates := m.Evaluate(s, cfg)
		assert.Equal(t, wantStatus, status)
		assert.Equal(t, wantCandidates, candidates)
		assert.Equal(t, wantStatus, m.Status())
	}
}
