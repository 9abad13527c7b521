package tracking

import "time"

// Default tracker parameters.
const (
	DefaultBucketWidth = 50.0
	DefaultSpeedScale  = 0.5
)

// DefaultLabels is the set of detector labels the tracker follows.
var DefaultLabels = []string{"person", "car", "drone"}

// Config holds all tunable parameters for the object tracker
type Config struct {
	// Labels are the detector classes that get tracked. Anything else is ignored.
	Labels []string `yaml:"labels"`

	// BucketWidth quantizes the horizontal center into identity buckets (pixels).
	BucketWidth float64 `yaml:"bucket_width"`

	// SpeedScale converts pixels/sec into the heuristic speed unit.
	SpeedScale float64 `yaml:"speed_scale"`

	// StaleAfter drops entries unseen for this long when Prune runs.
	// Zero keeps every entry for the life of the process.
	StaleAfter time.Duration `yaml:"stale_after"`
}

// DefaultConfig returns the configuration matching the reference behaviour:
// person/car/drone, 50px buckets, 0.5 speed scale, no eviction.
func DefaultConfig() Config {
	return Config{
		Labels:      append([]string(nil), DefaultLabels...),
		BucketWidth: DefaultBucketWidth,
		SpeedScale:  DefaultSpeedScale,
	}
}

// withDefaults fills zero values so a partially populated Config still works.
func (c Config) withDefaults() Config {
	if len(c.Labels) == 0 {
		c.Labels = append([]string(nil), DefaultLabels...)
	}
	if c.BucketWidth <= 0 {
		c.BucketWidth = DefaultBucketWidth
	}
	if c.SpeedScale <= 0 {
		c.SpeedScale = DefaultSpeedScale
	}
	return c
}
