package camera

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
)

// Capture errors.
var (
	ErrReadFailed = errors.New("camera: frame read failed")
	ErrClosed     = errors.New("camera: closed")
)

// Source produces frames.
type Source interface {
	// Read fills dst with the next frame.
	Read(dst *gocv.Mat) error
	Close() error
}

// Webcam reads from a local capture device.
type Webcam struct {
	logger *slog.Logger

	mu     sync.Mutex
	config Config
	cap    *gocv.VideoCapture
	raw    gocv.Mat
	closed bool
}

// OpenWebcam opens the device named in cfg and applies its settings.
func OpenWebcam(cfg Config, logger *slog.Logger) (*Webcam, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera: invalid config: %v", errs)
	}
	if logger == nil {
		logger = slog.Default()
	}

	cap, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("camera: open device %d: %w", cfg.Device, err)
	}

	w := &Webcam{
		logger: logger.With("component", "camera"),
		cap:    cap,
		raw:    gocv.NewMat(),
	}
	w.applyLocked(cfg)
	w.logger.Info("camera opened", "device", cfg.Device, "width", cfg.Width, "height", cfg.Height, "fps", cfg.Framerate)
	return w, nil
}

// Apply changes capture settings on the open device. Suitable as a
// Manager.OnConfigChange callback.
func (w *Webcam) Apply(cfg Config) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if cfg.Device != w.config.Device {
		return fmt.Errorf("camera: changing device requires a restart")
	}
	w.applyLocked(cfg)
	return nil
}

func (w *Webcam) applyLocked(cfg Config) {
	w.cap.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	w.cap.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	w.cap.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	if cfg.Brightness != 0 {
		w.cap.Set(gocv.VideoCaptureBrightness, cfg.Brightness)
	}
	w.config = cfg
}

// Read grabs the next frame, mirrored when configured.
func (w *Webcam) Read(dst *gocv.Mat) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if ok := w.cap.Read(&w.raw); !ok || w.raw.Empty() {
		return ErrReadFailed
	}
	if w.config.Mirror {
		gocv.Flip(w.raw, dst, 1)
	} else {
		w.raw.CopyTo(dst)
	}
	return nil
}

// Config returns the active settings.
func (w *Webcam) Config() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.config
}

// Close releases the device.
func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.raw.Close()
	return w.cap.Close()
}

var _ Source = (*Webcam)(nil)
