package core

import "github.com/spaghettifunk/vista/engine/containers"

const AVG_COUNT int = 30

// Metrics keeps a rolling average of frame times and counts frames per second.
type Metrics struct {
	frameTimes         *containers.RingQueue[float64]
	frames             int32
	accumulatedFrameMS float64
	fps                float64
}

func NewMetrics() *Metrics {
	return &Metrics{
		frameTimes: containers.NewRingQueue[float64](AVG_COUNT),
	}
}

// Update records one frame. It returns true each time a full second has been
// accumulated and the FPS value was refreshed.
func (m *Metrics) Update(frameElapsedTime float64) bool {
	frameMS := frameElapsedTime * 1000.0
	m.frameTimes.Push(frameMS)

	m.frames++
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
		return true
	}
	return false
}

func (m *Metrics) FPS() float64 {
	return m.fps
}

// FrameTime is the average frame time in milliseconds.
func (m *Metrics) FrameTime() float64 {
	return containers.Average(m.frameTimes)
}

func (m *Metrics) Frame() (float64, float64) {
	return m.FPS(), m.FrameTime()
}
