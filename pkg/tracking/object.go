package tracking

import (
	"math"
	"time"
)

// Point is a position in frame pixels.
type Point struct {
	X, Y float64
}

// Dist returns the Euclidean distance to q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Box is an axis-aligned bounding box in frame pixels (x1,y1 top-left, x2,y2 bottom-right).
type Box struct {
	X1, Y1, X2, Y2 int
}

// Center returns the midpoint of the box. Degenerate or inverted boxes
// still produce a midpoint.
func (b Box) Center() Point {
	return Point{
		X: float64(b.X1+b.X2) / 2,
		Y: float64(b.Y1+b.Y2) / 2,
	}
}

// Detection is one object reported by the detector for one frame.
type Detection struct {
	Label      string
	Box        Box
	Confidence float64
}

// Center returns the center point of the detection
func (d Detection) Center() Point {
	return d.Box.Center()
}

// Object is a tracked identity keyed by its spatial bucket.
type Object struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Center    Point     `json:"center"`
	Box       Box       `json:"box"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Speed     int       `json:"speed"` // heuristic px/s scaled by SpeedScale
}
