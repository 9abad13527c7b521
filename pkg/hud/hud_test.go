package hud

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/teslashibe/aegis/pkg/engine"
	"github.com/teslashibe/aegis/pkg/session"
	"github.com/teslashibe/aegis/pkg/threat"
	"github.com/teslashibe/aegis/pkg/tracking"
)

func TestTierColor(t *testing.T) {
	assert.Equal(t, Green, TierColor(threat.Normal))
	assert.Equal(t, Amber, TierColor(threat.Caution))
	assert.Equal(t, Red, TierColor(threat.Danger))
}

func TestBorderThickness(t *testing.T) {
	assert.Equal(t, 2, BorderThickness(false, 3*time.Second))

	for ms := 0; ms < 2000; ms += 7 {
		got := BorderThickness(true, time.Duration(ms)*time.Millisecond)
		if got < 1 || got > 4 {
			t.Fatalf("BorderThickness(%dms) = %d, want 1..4", ms, got)
		}
	}
}

func TestScanLines(t *testing.T) {
	rows := ScanLines(480, 0)
	require.Len(t, rows, scanLineCount)
	assert.Equal(t, 0, rows[0])
	assert.Equal(t, 30, rows[1])

	// 0.5s at 500px/s moves every line 250px down, wrapping at the bottom.
	moved := ScanLines(480, 500*time.Millisecond)
	assert.Equal(t, 250, moved[0])
	assert.Equal(t, (250+14*30)%480, moved[14])
	for _, y := range moved {
		assert.True(t, y >= 0 && y < 480)
	}

	assert.Nil(t, ScanLines(0, time.Second))
}

func TestText(t *testing.T) {
	assert.Equal(t, "SYSTEM_MODE: TRACKING", ModeText(session.State{}))
	assert.Equal(t, "SYSTEM_MODE: LOCKDOWN", ModeText(session.State{Lockdown: true}))

	target := threat.Target{
		Object: tracking.Object{Label: "drone", Speed: 52},
		Tier:   threat.Danger,
	}
	assert.Equal(t, "drone 52px/s DANGER", TargetLabel(target))
}

func TestRenderer_Draw(t *testing.T) {
	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer img.Close()

	mock := clock.NewMock()
	r := NewRenderer(mock)

	frame := engine.Frame{
		Assessment: threat.Assessment{
			Danger: true,
			Targets: []threat.Target{{
				Object: tracking.Object{
					Label:  "person",
					Box:    tracking.Box{X1: 200, Y1: 100, X2: 300, Y2: 300},
					Center: tracking.Point{X: 250, Y: 200},
					Speed:  50,
				},
				Tier: threat.Danger,
			}},
		},
		State: session.State{Lockdown: true},
	}
	r.Draw(&img, frame)

	// Border on the top edge is red (BGR).
	px := img.GetVecbAt(borderInset, 100)
	assert.Equal(t, gocv.Vecb{0, 0, 255}, px)

	jpeg, err := EncodeJPEG(img, 80)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8}, jpeg[:2])
}

func TestEncodeJPEG_Empty(t *testing.T) {
	img := gocv.NewMat()
	defer img.Close()

	_, err := EncodeJPEG(img, 80)
	assert.ErrorIs(t, err, ErrEmptyImage)
}
