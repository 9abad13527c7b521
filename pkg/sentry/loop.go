package sentry

import (
	"context"
	"errors"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/aegis/pkg/camera"
	"github.com/teslashibe/aegis/pkg/command"
	"github.com/teslashibe/aegis/pkg/engine"
	"github.com/teslashibe/aegis/pkg/hud"
)

const (
	readRetryDelay = 10 * time.Millisecond
	logEvery       = 5 * time.Second

	// streamEvery sends every Nth frame to dashboard viewers.
	streamEvery = 3
)

// visionLoop is the single frame goroutine: capture, detect, track, draw.
func (a *App) visionLoop(ctx context.Context) error {
	frame := gocv.NewMat()
	defer frame.Close()

	var (
		count    uint64
		failures int
		lastLog  time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := a.webcam.Read(&frame); err != nil {
			if errors.Is(err, camera.ErrClosed) {
				return nil
			}
			failures++
			if a.clock.Since(lastLog) > logEvery {
				a.logger.Warn("frame read failed", "error", err, "failures", failures)
				lastLog = a.clock.Now()
			}
			a.clock.Sleep(readRetryDelay)
			continue
		}
		failures = 0

		dets, err := a.detector.Detect(frame)
		if err != nil {
			a.logger.Debug("detection failed", "error", err)
			continue
		}

		f := a.engine.Tick(dets)
		a.renderer.Draw(&frame, f)
		a.publish(f)

		count++
		if a.webServer != nil && count%streamEvery == 0 && a.webServer.CameraClients() > 0 {
			if jpeg, err := hud.EncodeJPEG(frame, a.config.Camera.Quality); err == nil {
				a.webServer.SendCameraFrame(jpeg)
			}
		}

		if a.window != nil && a.window.Show(frame) {
			a.session.Apply(command.PowerDown(command.PhraseOff))
		}
	}
}

// replayLoop feeds scripted detections at the replay frame rate.
func (a *App) replayLoop(ctx context.Context) error {
	ticker := a.clock.Ticker(a.replay.Interval)
	defer ticker.Stop()

	start := a.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			f := a.engine.Process(a.replay.At(now.Sub(start)), now)
			a.publish(f)
		}
	}
}

func (a *App) publish(f engine.Frame) {
	if a.webServer != nil {
		a.webServer.Publish(f)
	}
}
