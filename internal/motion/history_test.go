package motion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistory(t *testing.T) {
	h := NewHistory(3)
	assert.Empty(t, h.Values())

	h.Push(0.1)
	h.Push(0.2)
	assert.Equal(t, []float64{0.1, 0.2}, h.Values())

	h.Push(0.3)
	h.Push(0.4)
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, []float64{0.2, 0.3, 0.4}, h.Values())

	h.Reset()
	assert.Equal(t, 0, h.Len())
}

func TestHistory_DefaultSize(t *testing.T) {
	h := NewHistory(0)
	for i := 0; i < 25; i++ {
		h.Push(float64(i))
	}
	assert.Equal(t, DefaultHistorySize, h.Len())
	assert.Equal(t, 5.0, h.Values()[0])
}
