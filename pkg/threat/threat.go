// Package threat maps tracked objects to discrete alert tiers.
//
// Classification is pure: it never touches session state. Callers that keep a
// running peak speed update it themselves from Assessment.MaxSpeed.
package threat

import "github.com/teslashibe/aegis/pkg/tracking"

// Tier is a discrete threat level.
type Tier int

const (
	Normal Tier = iota
	Caution
	Danger
)

// String returns the HUD name of the tier.
func (t Tier) String() string {
	switch t {
	case Caution:
		return "CAUTION"
	case Danger:
		return "DANGER"
	default:
		return "NORMAL"
	}
}

// MarshalText encodes the tier by name for JSON consumers.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Thresholds are exclusive lower bounds on speed for each tier.
type Thresholds struct {
	Caution int `yaml:"caution"`
	Danger  int `yaml:"danger"`
}

// DefaultThresholds returns 15 for CAUTION and 40 for DANGER.
func DefaultThresholds() Thresholds {
	return Thresholds{Caution: 15, Danger: 40}
}

// Tier classifies a speed with these thresholds.
func (th Thresholds) Tier(speed int, lockdown bool) Tier {
	switch {
	case lockdown || speed > th.Danger:
		return Danger
	case speed > th.Caution:
		return Caution
	default:
		return Normal
	}
}

// Classify maps an object to a tier using the default thresholds.
// Lockdown forces DANGER regardless of speed.
func Classify(obj tracking.Object, lockdown bool) Tier {
	return DefaultThresholds().Tier(obj.Speed, lockdown)
}

// Target is a tracked object tagged with its tier for one frame.
type Target struct {
	tracking.Object
	Tier Tier `json:"tier"`
}

// Assessment is the classification of one frame.
type Assessment struct {
	Targets  []Target `json:"targets"`
	Danger   bool     `json:"danger"`    // lockdown or any DANGER target
	MaxSpeed int      `json:"max_speed"` // fastest object this frame
}

// Assess tags every object and computes the frame's danger flag.
func (th Thresholds) Assess(objs []tracking.Object, lockdown bool) Assessment {
	a := Assessment{
		Targets: make([]Target, 0, len(objs)),
		Danger:  lockdown,
	}
	for _, obj := range objs {
		tier := th.Tier(obj.Speed, lockdown)
		if tier == Danger {
			a.Danger = true
		}
		if obj.Speed > a.MaxSpeed {
			a.MaxSpeed = obj.Speed
		}
		a.Targets = append(a.Targets, Target{Object: obj, Tier: tier})
	}
	return a
}

// Assess uses the default thresholds.
func Assess(objs []tracking.Object, lockdown bool) Assessment {
	return DefaultThresholds().Assess(objs, lockdown)
}

// Highest returns the most severe tier in the assessment.
func (a Assessment) Highest() Tier {
	highest := Normal
	for _, t := range a.Targets {
		if t.Tier > highest {
			highest = t.Tier
		}
	}
	if a.Danger {
		return Danger
	}
	return highest
}
