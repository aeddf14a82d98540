package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	refreshed := false
	for i := 0; i < 61; i++ {
		if m.Update(1.0 / 60.0) {
			refreshed = true
		}
	}
	assert.True(t, refreshed)
	assert.InDelta(t, 61.0, m.FPS(), 1.0)
	assert.InDelta(t, 1000.0/60.0, m.FrameTime(), 1e-6)
}
