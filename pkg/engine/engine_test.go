package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/aegis/pkg/command"
	"github.com/teslashibe/aegis/pkg/session"
	"github.com/teslashibe/aegis/pkg/threat"
	"github.com/teslashibe/aegis/pkg/tracking"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) Announce(text string) {
	r.mu.Lock()
	r.lines = append(r.lines, text)
	r.mu.Unlock()
}

func (r *recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

type fixture struct {
	engine  *Engine
	session *session.Controller
	clock   *clock.Mock
	spoken  *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(t0)
	rec := &recorder{}
	ctl := session.New(rec, session.WithClock(mock))
	e := New(DefaultConfig(), tracking.New(tracking.DefaultConfig()), ctl, WithClock(mock))
	return &fixture{engine: e, session: ctl, clock: mock, spoken: rec}
}

func person(cx, cy int) tracking.Detection {
	return tracking.Detection{
		Label:      "person",
		Box:        tracking.Box{X1: cx - 10, Y1: cy - 10, X2: cx + 10, Y2: cy + 10},
		Confidence: 0.9,
	}
}

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func TestNew_FillsDefaults(t *testing.T) {
	e := New(Config{}, tracking.New(tracking.DefaultConfig()), session.New(nil))
	assert.Equal(t, DefaultConfig(), e.Config())
}

// One person moving 10px every 100ms has speed round(100px/s * 0.5) = 50.
func TestProcess_EndToEnd(t *testing.T) {
	f := newFixture(t)

	var dangers []bool
	var peaks []int
	for i := 0; i < 4; i++ {
		frame := f.engine.Process([]tracking.Detection{person(225, 100+10*i)}, at(100*i))
		require.Len(t, frame.Assessment.Targets, 1)
		dangers = append(dangers, frame.State.Danger)
		peaks = append(peaks, frame.State.PeakSpeed)
	}

	assert.Equal(t, []bool{false, true, true, true}, dangers)
	assert.Equal(t, []int{0, 50, 50, 50}, peaks)

	s := f.session.Snapshot()
	assert.False(t, s.Authorized)
	assert.False(t, s.Lockdown)
	assert.Equal(t, 1, s.TargetCount)
	assert.Equal(t, []string{command.PhraseDanger}, f.spoken.Lines(), "one alert on the rising edge")
}

func TestProcess_TargetTiers(t *testing.T) {
	f := newFixture(t)

	f.engine.Process([]tracking.Detection{person(25, 100), person(125, 100)}, at(0))
	frame := f.engine.Process([]tracking.Detection{person(25, 102), person(125, 106)}, at(100))

	require.Len(t, frame.Assessment.Targets, 2)
	assert.Equal(t, 10, frame.Assessment.Targets[0].Speed)
	assert.Equal(t, threat.Normal, frame.Assessment.Targets[0].Tier)
	assert.Equal(t, 30, frame.Assessment.Targets[1].Speed)
	assert.Equal(t, threat.Caution, frame.Assessment.Targets[1].Tier)
	assert.False(t, frame.Hostile)
	assert.Equal(t, 2, f.engine.Stats().Tracked)
}

func TestProcess_LockdownMarksEveryTarget(t *testing.T) {
	f := newFixture(t)
	f.session.Apply(command.Lockdown(true, ""))

	frame := f.engine.Process([]tracking.Detection{person(25, 100)}, at(0))

	assert.True(t, frame.Assessment.Danger)
	assert.True(t, frame.State.Danger)
	assert.Equal(t, threat.Danger, frame.Assessment.Targets[0].Tier)
	assert.False(t, frame.Hostile, "lockdown alone is not a hostile target")
	assert.Empty(t, f.spoken.Lines())
}

func TestProcess_DangerAlertIsThrottled(t *testing.T) {
	f := newFixture(t)
	step := func(ms int, dets ...tracking.Detection) Frame {
		return f.engine.Process(dets, at(ms))
	}

	step(0, person(225, 100))
	assert.True(t, step(100, person(225, 110)).Hostile)
	assert.False(t, step(200).Hostile)
	assert.True(t, step(300, person(225, 130)).Hostile, "second rising edge inside the interval")
	assert.Len(t, f.spoken.Lines(), 1)

	assert.False(t, step(11000, person(225, 200)).Hostile)
	assert.True(t, step(11100, person(225, 210)).Hostile)
	assert.Len(t, f.spoken.Lines(), 2)
	assert.Equal(t, uint64(2), f.engine.Stats().Alerts)
}

func TestProcess_ScanVerdict(t *testing.T) {
	t.Run("clear perimeter", func(t *testing.T) {
		f := newFixture(t)
		f.session.Apply(command.Scan(true, ""))

		assert.True(t, f.engine.Process(nil, at(500)).Scanning)
		assert.Empty(t, f.spoken.Lines(), "sweep still running")

		f.engine.Process(nil, at(1000))
		f.engine.Process(nil, at(2000))
		assert.Equal(t, []string{command.PhraseNormal}, f.spoken.Lines(), "verdict spoken once")
		assert.True(t, f.session.Snapshot().ScanActive, "scan stays active until cleared")
	})

	t.Run("hostile target during sweep", func(t *testing.T) {
		f := newFixture(t)
		f.session.Apply(command.Scan(true, ""))

		f.engine.Process([]tracking.Detection{person(225, 100)}, at(900))
		f.engine.Process([]tracking.Detection{person(235, 100)}, at(1000))
		// rising-edge alert, then the verdict
		assert.Equal(t, []string{command.PhraseDanger, command.PhraseDanger}, f.spoken.Lines())
	})

	t.Run("lockdown over an empty perimeter", func(t *testing.T) {
		f := newFixture(t)
		f.session.Apply(command.Scan(true, ""))
		f.session.Apply(command.Lockdown(true, ""))

		frame := f.engine.Process(nil, at(1200))
		assert.True(t, frame.Assessment.Danger)
		assert.Equal(t, []string{command.PhraseNormal}, f.spoken.Lines())
	})

	t.Run("new scan gets a new verdict", func(t *testing.T) {
		f := newFixture(t)
		f.session.Apply(command.Scan(true, ""))
		f.engine.Process(nil, at(1000))

		f.session.Apply(command.Scan(false, ""))
		f.clock.Set(at(5000))
		f.session.Apply(command.Scan(true, ""))
		f.engine.Process(nil, at(5500))
		f.engine.Process(nil, at(6000))

		assert.Equal(t, []string{command.PhraseNormal, command.PhraseNormal}, f.spoken.Lines())
	})
}

func TestProcess_MeanSpeed(t *testing.T) {
	f := newFixture(t)

	f.engine.Process([]tracking.Detection{person(225, 100)}, at(0))
	f.engine.Process([]tracking.Detection{person(225, 110)}, at(100))
	frame := f.engine.Process([]tracking.Detection{person(225, 120)}, at(200))

	// window holds 0, 50, 50
	assert.Equal(t, 33, frame.State.MeanSpeed)
}

func TestProcess_SpeedWindowIsBounded(t *testing.T) {
	mock := clock.NewMock()
	ctl := session.New(nil, session.WithClock(mock))
	cfg := DefaultConfig()
	cfg.SpeedWindow = 2
	e := New(cfg, tracking.New(tracking.DefaultConfig()), ctl)

	e.Process([]tracking.Detection{person(225, 100)}, at(0))
	e.Process([]tracking.Detection{person(225, 110)}, at(100))
	e.Process([]tracking.Detection{person(225, 110)}, at(200))

	// window holds 50, 0
	assert.Equal(t, 25, ctl.Snapshot().MeanSpeed)
}

func TestProcess_PrunesWhenBounded(t *testing.T) {
	ctl := session.New(nil)
	tcfg := tracking.DefaultConfig()
	tcfg.StaleAfter = time.Second
	e := New(DefaultConfig(), tracking.New(tcfg), ctl)

	e.Process([]tracking.Detection{person(25, 100)}, at(0))
	e.Process(nil, at(3000))

	assert.Equal(t, 0, e.Tracker().Len())
}

func TestTick_UsesClock(t *testing.T) {
	f := newFixture(t)
	f.clock.Add(2 * time.Second)

	frame := f.engine.Tick(nil)
	assert.Equal(t, t0.Add(2*time.Second), frame.At)
	assert.Equal(t, uint64(1), f.engine.Stats().Frames)
}
