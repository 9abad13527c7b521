// Package detection adapts object detection models to tracker input.
package detection

import (
	"errors"

	"github.com/samber/lo"
	"gocv.io/x/gocv"

	"github.com/teslashibe/aegis/pkg/tracking"
)

// DefaultMinConfidence drops detections the model is unsure about before they
// reach the tracker.
const DefaultMinConfidence = 0.4

// ErrEmptyFrame is returned when the detector is handed an empty image.
var ErrEmptyFrame = errors.New("detection: empty frame")

// Detector is the interface for object detection backends
type Detector interface {
	// Detect finds objects in a BGR frame. Boxes are in frame pixels.
	Detect(frame gocv.Mat) ([]tracking.Detection, error)

	// Close releases resources
	Close() error
}

// Config holds detector configuration
type Config struct {
	ModelPath     string            `yaml:"model_path"`     // Path to ONNX model
	MinConfidence float64           `yaml:"min_confidence"` // Minimum confidence (default 0.4)
	NMSThresh     float64           `yaml:"nms_thresh"`
	InputWidth    int               `yaml:"input_width"`  // Model input width
	InputHeight   int               `yaml:"input_height"` // Model input height
	Aliases       map[string]string `yaml:"aliases"`      // Class name -> tracker label
}

// DefaultConfig returns production defaults for YOLOv8n.
// COCO has no drone class, so airplanes are reported as drones.
func DefaultConfig() Config {
	return Config{
		ModelPath:     "models/yolov8n.onnx",
		MinConfidence: DefaultMinConfidence,
		NMSThresh:     0.45,
		InputWidth:    640,
		InputHeight:   640,
		Aliases:       map[string]string{"airplane": "drone"},
	}
}

// Label maps a model class name to the label handed to the tracker.
func (c Config) Label(className string) string {
	if alias, ok := c.Aliases[className]; ok {
		return alias
	}
	return className
}

// FilterConfidence keeps detections at or above min.
func FilterConfidence(dets []tracking.Detection, min float64) []tracking.Detection {
	return lo.Filter(dets, func(d tracking.Detection, _ int) bool {
		return d.Confidence >= min
	})
}

// Labels returns the distinct labels in dets, in order of appearance.
func Labels(dets []tracking.Detection) []string {
	return lo.Uniq(lo.Map(dets, func(d tracking.Detection, _ int) string {
		return d.Label
	}))
}
