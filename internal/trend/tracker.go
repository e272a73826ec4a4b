// Package trend tracks the rolling sentiment of one session and decides
// when negativity has been sustained long enough to be alert-eligible.
//
// The tracker keeps a time-bounded window of recent samples and derives a
// simple moving average from it. Old samples are evicted only when a new
// sample arrives: silence is not evidence of sentiment, so the passage of
// time alone never moves the average.
//
// A Tracker is owned by exactly one session worker and is not safe for
// concurrent use.
package trend

import "time"

// State is the tracker's position in the sustained-negativity state machine.
type State string

const (
	// StateNeutral covers both neutral and positive running averages.
	StateNeutral State = "neutral"

	// StateNegativeBuilding means the average is below the threshold but
	// has not yet stayed there for the sustained duration.
	StateNegativeBuilding State = "negative-building"

	// StateNegativeSustained means the average has stayed below the
	// threshold for at least the sustained duration. Entry into this state
	// is the alert-eligible transition.
	StateNegativeSustained State = "negative-sustained"

	// StateCooldown suppresses further alert eligibility after a fire.
	// Scoring continues; eligibility resumes when the cooldown elapses.
	StateCooldown State = "cooldown"
)

// Config holds the tracker thresholds.
type Config struct {
	// NegThreshold is the compound average below which the trend counts as
	// negative (e.g., -0.1).
	NegThreshold float64

	// SustainedDuration is how long the average must stay below the
	// threshold before the trend becomes alert-eligible.
	SustainedDuration time.Duration

	// Window bounds how long samples contribute to the running average.
	Window time.Duration
}

// Sample is one scored final transcript segment.
type Sample struct {
	Compound float64
	At       time.Time
}

// Result describes the tracker after one Add call.
type Result struct {
	// State is the machine state after the sample was applied.
	State State

	// Average is the running average over the retained window.
	Average float64

	// At is the sample timestamp, echoed for the dispatcher.
	At time.Time

	// EnteredSustained is true exactly once per negative episode: on the
	// Add call whose sample carried the trend across the sustain boundary.
	EnteredSustained bool
}

// Tracker is the per-session sustained-negativity state machine.
type Tracker struct {
	cfg Config

	samples []Sample

	state         State
	negativeSince time.Time
	cooldownUntil time.Time
}

// New creates a Tracker in StateNeutral.
func New(cfg Config) *Tracker {
	return &Tracker{cfg: cfg, state: StateNeutral}
}

// Add applies one sentiment sample at the given time and advances the state
// machine. Samples must arrive in non-decreasing time order.
func (t *Tracker) Add(compound float64, now time.Time) Result {
	t.evict(now)
	t.samples = append(t.samples, Sample{Compound: compound, At: now})
	avg := t.average()

	// A finished cooldown re-evaluates normally from the current average.
	if t.state == StateCooldown {
		if now.Before(t.cooldownUntil) {
			return Result{State: StateCooldown, Average: avg, At: now}
		}
		t.state = StateNeutral
		t.negativeSince = time.Time{}
	}

	if avg < t.cfg.NegThreshold {
		if t.negativeSince.IsZero() {
			t.negativeSince = now
			t.state = StateNegativeBuilding
		} else if t.state != StateNegativeSustained &&
			now.Sub(t.negativeSince) >= t.cfg.SustainedDuration {
			t.state = StateNegativeSustained
			return Result{State: t.state, Average: avg, At: now, EnteredSustained: true}
		}
	} else {
		t.negativeSince = time.Time{}
		t.state = StateNeutral
	}

	return Result{State: t.state, Average: avg, At: now}
}

// BeginCooldown is called by the alert dispatcher when it fires. The
// tracker keeps accepting samples through the cooldown but reports no
// further alert eligibility until it elapses, and a fresh full sustained
// duration is required afterwards.
func (t *Tracker) BeginCooldown(now time.Time, d time.Duration) {
	t.state = StateCooldown
	t.cooldownUntil = now.Add(d)
	t.negativeSince = time.Time{}
}

// State returns the current machine state.
func (t *Tracker) State() State { return t.state }

// Average returns the running average over the retained samples, or 0 when
// no samples are retained. It performs no time-based eviction.
func (t *Tracker) Average() float64 { return t.average() }

// SampleCount returns the number of retained samples.
func (t *Tracker) SampleCount() int { return len(t.samples) }

// NegativeSince returns when the average first crossed below the threshold
// in the current episode, or the zero time if currently non-negative.
func (t *Tracker) NegativeSince() time.Time { return t.negativeSince }

func (t *Tracker) average() float64 {
	if len(t.samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range t.samples {
		sum += s.Compound
	}
	return sum / float64(len(t.samples))
}

// evict drops samples that have aged out of the window. Survivors move to a
// fresh backing array so evicted samples do not pin memory for the life of
// the session.
func (t *Tracker) evict(now time.Time) {
	if t.cfg.Window <= 0 {
		return
	}
	cutoff := now.Add(-t.cfg.Window)

	start := 0
	for start < len(t.samples) && t.samples[start].At.Before(cutoff) {
		start++
	}
	if start == 0 {
		return
	}
	fresh := make([]Sample, len(t.samples)-start)
	copy(fresh, t.samples[start:])
	t.samples = fresh
}
