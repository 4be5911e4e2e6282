// Package telemetry tracks frame timing and world counters and exports them
// as prometheus gauges.
package telemetry

import "time"

// Smoothing factor of the frame time moving average.
const emaAlpha = 0.1

// DefaultWindow is the span after which the max frame time resets.
const DefaultWindow = 5 * time.Second

// Snapshot is the debug read surface.
type Snapshot struct {
	FPS            float64
	FrameTime      time.Duration // smoothed
	MaxFrameTime   time.Duration // within the current window
	TotalBlocks    int
	Entities       int
	ResidentChunks int
	MeshedChunks   int
	RSS            uint64 // bytes
}

// FrameStats accumulates frame durations. It is driven from the frame loop
// and not safe for concurrent use.
type FrameStats struct {
	window time.Duration

	fps         float64
	fpsFrames   int
	fpsElapsed  time.Duration
	smoothed    float64 // nanoseconds
	maxFrame    time.Duration
	windowSpent time.Duration
	frames      uint64
}

// NewFrameStats creates frame statistics with the given max-reset window.
func NewFrameStats(window time.Duration) *FrameStats {
	if window <= 0 {
		window = DefaultWindow
	}
	return &FrameStats{window: window}
}

// Frame records one frame of duration dt.
func (s *FrameStats) Frame(dt time.Duration) {
	if dt < 0 {
		dt = 0
	}
	s.frames++

	if s.frames == 1 {
		s.smoothed = float64(dt)
	} else {
		s.smoothed = emaAlpha*float64(dt) + (1-emaAlpha)*s.smoothed
	}

	if s.windowSpent >= s.window {
		s.maxFrame = 0
		s.windowSpent = 0
	}
	s.windowSpent += dt
	s.maxFrame = max(s.maxFrame, dt)

	s.fpsFrames++
	s.fpsElapsed += dt
	if s.fpsElapsed >= time.Second {
		s.fps = float64(s.fpsFrames) / s.fpsElapsed.Seconds()
		s.fpsFrames = 0
		s.fpsElapsed = 0
	}
}

// FPS returns frames per second measured over the last full second.
func (s *FrameStats) FPS() float64 {
	return s.fps
}

// FrameTime returns the smoothed frame time.
func (s *FrameStats) FrameTime() time.Duration {
	return time.Duration(s.smoothed)
}

// MaxFrameTime returns the longest frame in the current window.
func (s *FrameStats) MaxFrameTime() time.Duration {
	return s.maxFrame
}

// Frames returns the number of recorded frames.
func (s *FrameStats) Frames() uint64 {
	return s.frames
}
