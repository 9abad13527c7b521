// Package tracking keeps per-object identity across frames and estimates a
// heuristic speed for every tracked object.
//
// Identity is deliberately coarse: an object is keyed by its label and the
// horizontal bucket its center falls in. An object keeps its identity only
// while it stays in the same bucket.
package tracking

import (
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Tracker maintains the table of tracked objects.
// It is safe for concurrent use, though the frame loop is its only writer.
type Tracker struct {
	config Config
	labels map[string]bool

	mu      sync.RWMutex
	objects map[string]*Object
}

// New creates a tracker with the given configuration
func New(config Config) *Tracker {
	config = config.withDefaults()
	labels := make(map[string]bool, len(config.Labels))
	for _, l := range config.Labels {
		labels[l] = true
	}
	return &Tracker{
		config:  config,
		labels:  labels,
		objects: make(map[string]*Object),
	}
}

// Config returns the effective configuration.
func (t *Tracker) Config() Config {
	return t.config
}

// Tracks reports whether a detector label is followed by this tracker.
func (t *Tracker) Tracks(label string) bool {
	return t.labels[label]
}

// BucketID returns the identity key for a detection.
func (t *Tracker) BucketID(d Detection) string {
	c := d.Center()
	return d.Label + strconv.Itoa(int(math.Floor(c.X/t.config.BucketWidth)))
}

// Update folds one frame of detections into the table and returns a copy of
// every entry touched by this frame, in order of first appearance.
// Entries are never evicted here; see Prune.
func (t *Tracker) Update(dets []Detection, now time.Time) []Object {
	t.mu.Lock()
	defer t.mu.Unlock()

	var order []string
	for _, d := range dets {
		if !t.labels[d.Label] {
			continue
		}

		id := t.BucketID(d)
		center := d.Center()

		obj, exists := t.objects[id]
		if !exists {
			obj = &Object{ID: id, Label: d.Label, FirstSeen: now}
			t.objects[id] = obj
		} else {
			obj.Speed = speed(obj.Center, center, now.Sub(obj.LastSeen), t.config.SpeedScale)
		}

		obj.Center = center
		obj.Box = d.Box
		obj.LastSeen = now

		if !slices.Contains(order, id) {
			order = append(order, id)
		}
	}

	updated := make([]Object, 0, len(order))
	for _, id := range order {
		updated = append(updated, *t.objects[id])
	}
	return updated
}

// speed converts a displacement over dt into the heuristic speed unit.
// A non-positive dt yields 0.
func speed(prev, cur Point, dt time.Duration, scale float64) int {
	secs := dt.Seconds()
	if secs <= 0 {
		return 0
	}
	return int(math.Round(prev.Dist(cur) / secs * scale))
}

// Prune removes entries not seen within StaleAfter of now and returns how many
// were dropped. It is a no-op when StaleAfter is zero.
func (t *Tracker) Prune(now time.Time) int {
	if t.config.StaleAfter <= 0 {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	dropped := 0
	for id, obj := range t.objects {
		if now.Sub(obj.LastSeen) > t.config.StaleAfter {
			delete(t.objects, id)
			dropped++
		}
	}
	return dropped
}

// Objects returns a copy of every entry in the table.
func (t *Tracker) Objects() []Object {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]Object, 0, len(t.objects))
	for _, obj := range t.objects {
		result = append(result, *obj)
	}
	slices.SortFunc(result, func(a, b Object) int { return strings.Compare(a.ID, b.ID) })
	return result
}

// Len returns the number of entries in the table.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.objects)
}

// Reset removes all tracked entries
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.objects = make(map[string]*Object)
}
