package sentry

import (
	"time"

	"github.com/samber/lo"

	"github.com/teslashibe/aegis/pkg/tracking"
)

// Track is one scripted object crossing the frame.
type Track struct {
	Label    string
	Start    tracking.Point // center at Enter
	Velocity tracking.Point // px/s
	Size     int            // box edge length
	Enter    time.Duration  // offset into the loop
	Leave    time.Duration
}

// Replay stands in for the camera and detector in console mode. It loops a
// fixed script of tracks so the engine sees a realistic mix of tiers.
type Replay struct {
	Tracks   []Track
	Period   time.Duration // script length; At wraps around it
	Interval time.Duration // frame spacing
}

// DefaultReplay scripts a slow person, a car at caution speed and a drone
// fast enough to be hostile, on a 20 second loop at 10 frames per second.
func DefaultReplay() *Replay {
	return &Replay{
		Tracks: []Track{
			{Label: "person", Start: tracking.Point{X: 60, Y: 300}, Velocity: tracking.Point{X: 20}, Size: 120, Enter: 0, Leave: 20 * time.Second},
			{Label: "car", Start: tracking.Point{X: 600, Y: 380}, Velocity: tracking.Point{X: -60}, Size: 100, Enter: 5 * time.Second, Leave: 14 * time.Second},
			{Label: "drone", Start: tracking.Point{X: 40, Y: 80}, Velocity: tracking.Point{X: 160, Y: 10}, Size: 40, Enter: 10 * time.Second, Leave: 13 * time.Second},
		},
		Period:   20 * time.Second,
		Interval: 100 * time.Millisecond,
	}
}

// At returns the detections visible at elapsed time into the replay.
func (r *Replay) At(elapsed time.Duration) []tracking.Detection {
	if r.Period > 0 {
		elapsed %= r.Period
	}
	visible := lo.Filter(r.Tracks, func(t Track, _ int) bool {
		return elapsed >= t.Enter && elapsed < t.Leave
	})
	return lo.Map(visible, func(t Track, _ int) tracking.Detection {
		s := (elapsed - t.Enter).Seconds()
		cx := t.Start.X + t.Velocity.X*s
		cy := t.Start.Y + t.Velocity.Y*s
		half := float64(t.Size) / 2
		return tracking.Detection{
			Label: t.Label,
			Box: tracking.Box{
				X1: int(cx - half), Y1: int(cy - half),
				X2: int(cx + half), Y2: int(cy + half),
			},
			Confidence: 0.9,
		}
	})
}
