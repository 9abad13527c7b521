// Package hud draws the sentry overlay onto camera frames.
package hud

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/samber/lo"
	"gocv.io/x/gocv"

	"github.com/teslashibe/aegis/pkg/engine"
	"github.com/teslashibe/aegis/pkg/session"
	"github.com/teslashibe/aegis/pkg/threat"
)

// Overlay colors.
var (
	Green  = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Amber  = color.RGBA{R: 255, G: 191, B: 0, A: 255}
	Red    = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const (
	borderInset   = 10
	scanLineCount = 15
	scanLineGap   = 30
	scanSpeed     = 500.0 // px/s
	pulseRate     = 10.0  // rad/s
)

// TierColor returns the box color for a tier.
func TierColor(t threat.Tier) color.RGBA {
	switch t {
	case threat.Danger:
		return Red
	case threat.Caution:
		return Amber
	default:
		return Green
	}
}

// FrameColor is red while the frame is dangerous and yellow otherwise.
func FrameColor(danger bool) color.RGBA {
	if danger {
		return Red
	}
	return Yellow
}

// BorderThickness pulses between 1 and 4 px while danger is active.
func BorderThickness(danger bool, elapsed time.Duration) int {
	if !danger {
		return 2
	}
	return max(1, int(2+math.Sin(elapsed.Seconds()*pulseRate)*2))
}

// ScanLines returns the rows of the sweeping scan lines for a frame of the
// given height.
func ScanLines(height int, elapsed time.Duration) []int {
	if height <= 0 {
		return nil
	}
	offset := elapsed.Seconds() * scanSpeed
	return lo.Times(scanLineCount, func(i int) int {
		return int(math.Mod(offset+float64(i*scanLineGap), float64(height)))
	})
}

// ModeText is the status line in the bottom corner.
func ModeText(s session.State) string {
	return "SYSTEM_MODE: " + s.Mode()
}

// TargetLabel is drawn above each box.
func TargetLabel(t threat.Target) string {
	return fmt.Sprintf("%s %dpx/s %s", t.Label, t.Speed, t.Tier)
}

// Renderer draws engine frames.
type Renderer struct {
	clock clock.Clock
	start time.Time
}

// NewRenderer creates a renderer. A nil clock uses the wall clock.
func NewRenderer(c clock.Clock) *Renderer {
	if c == nil {
		c = clock.New()
	}
	return &Renderer{clock: c, start: c.Now()}
}

// Draw renders the overlay for f onto img in place.
func (r *Renderer) Draw(img *gocv.Mat, f engine.Frame) {
	if img.Empty() {
		return
	}
	w, h := img.Cols(), img.Rows()
	now := r.clock.Now()
	danger := f.Assessment.Danger
	frameCol := FrameColor(danger)

	gocv.Rectangle(img,
		image.Rect(borderInset, borderInset, w-borderInset, h-borderInset),
		frameCol, BorderThickness(danger, now.Sub(r.start)))

	for _, t := range f.Assessment.Targets {
		col := TierColor(t.Tier)
		rect := image.Rect(t.Box.X1, t.Box.Y1, t.Box.X2, t.Box.Y2)
		gocv.Rectangle(img, rect, col, 2)

		center := image.Pt(int(t.Center.X), int(t.Center.Y))
		drawCross(img, center, 20, col)

		labelPos := image.Pt(rect.Min.X, rect.Min.Y-10)
		if labelPos.Y < 15 {
			labelPos.Y = rect.Max.Y + 20
		}
		gocv.PutText(img, TargetLabel(t), labelPos, gocv.FontHersheySimplex, 0.5, col, 2)
	}

	if f.State.ScanActive {
		since := now.Sub(f.State.ScanStarted)
		for _, y := range ScanLines(h, since) {
			gocv.Line(img, image.Pt(0, y), image.Pt(w, y), Yellow, 1)
		}
	}

	gocv.PutText(img, ModeText(f.State), image.Pt(20, h-20), gocv.FontHersheySimplex, 0.4, frameCol, 1)
	gocv.PutText(img, fmt.Sprintf("PEAK %d  MEAN %d  TARGETS %d", f.State.PeakSpeed, f.State.MeanSpeed, f.State.TargetCount),
		image.Pt(20, 30), gocv.FontHersheySimplex, 0.4, White, 1)
}

func drawCross(img *gocv.Mat, c image.Point, arm int, col color.RGBA) {
	gocv.Line(img, image.Pt(c.X-arm, c.Y), image.Pt(c.X+arm, c.Y), col, 2)
	gocv.Line(img, image.Pt(c.X, c.Y-arm), image.Pt(c.X, c.Y+arm), col, 2)
}
