package risk

import (
	"sync"
	"time"

	"github.com/rewired-gh/mmradar/internal/models"
)

const (
	WarningCooldown     = 30 * time.Minute
	DefaultInfoCooldown = time.Hour
)

// Phase is the alert state of a single instrument.
type Phase int

const (
	// PhaseIdle means no alert has been committed yet.
	PhaseIdle Phase = iota
	// PhaseCooling means an alert was committed and the cooldown is running.
	PhaseCooling
	// PhaseArmed means the cooldown has elapsed.
	PhaseArmed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCooling:
		return "cooling"
	case PhaseArmed:
		return "armed"
	default:
		return "unknown"
	}
}

// ShouldAlert decides whether an assessment is deliverable. Critical
// assessments are always delivered; warnings wait WarningCooldown and
// everything else waits cooldown after the last alert.
func ShouldAlert(severity models.Severity, score int, last time.Time, hasLast bool, cooldown time.Duration, now time.Time) bool {
	if severity == models.SeverityCritical || score >= CriticalScore {
		return true
	}
	if !hasLast {
		return true
	}
	elapsed := now.Sub(last)
	if severity == models.SeverityWarning || score >= WarningScore {
		return elapsed >= WarningCooldown
	}
	return elapsed >= cooldown
}

// Scheduler keeps the last alert time per instrument. Decide never mutates
// state; callers Commit only after an alert was actually delivered.
type Scheduler struct {
	mu       sync.Mutex
	last     map[string]time.Time
	cooldown time.Duration
	now      func() time.Time
}

// NewScheduler creates a scheduler with the given info-tier cooldown. A
// non-positive cooldown selects DefaultInfoCooldown; a nil clock selects
// time.Now.
func NewScheduler(cooldown time.Duration, now func() time.Time) *Scheduler {
	if cooldown <= 0 {
		cooldown = DefaultInfoCooldown
	}
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		last:     make(map[string]time.Time),
		cooldown: cooldown,
		now:      now,
	}
}

func (s *Scheduler) Cooldown() time.Duration {
	return s.cooldown
}

func (s *Scheduler) Decide(instrument string, severity models.Severity, score int) bool {
	last, ok := s.LastAlert(instrument)
	return ShouldAlert(severity, score, last, ok, s.cooldown, s.now())
}

// Commit records an alert for instrument at the current time. The stored
// time never moves backwards.
func (s *Scheduler) Commit(instrument string) time.Time {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.last[instrument]; ok && prev.After(now) {
		return prev
	}
	s.last[instrument] = now
	return now
}

// LastAlert returns the last committed alert time for instrument.
func (s *Scheduler) LastAlert(instrument string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.last[instrument]
	return t, ok
}

// Phase reports the state of instrument against the info-tier cooldown.
func (s *Scheduler) Phase(instrument string) Phase {
	last, ok := s.LastAlert(instrument)
	if !ok {
		return PhaseIdle
	}
	if s.now().Sub(last) < s.cooldown {
		return PhaseCooling
	}
	return PhaseArmed
}
