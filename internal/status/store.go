package status

import (
	"sync"
	"time"

	"github.com/berfenger/iglogger/internal/core/domain"
	"github.com/berfenger/iglogger/internal/core/port"
)

// Snapshot is the view of the logger served over HTTP.
type Snapshot struct {
	State       domain.EngineState     `json:"state"`
	Healthy     bool                   `json:"healthy"`
	StartedAt   time.Time              `json:"started_at"`
	UpdatedAt   time.Time              `json:"updated_at,omitempty"`
	Cycles      uint64                 `json:"cycles"`
	IdleCycles  uint64                 `json:"idle_cycles"`
	PeriodStart time.Time              `json:"period_start,omitempty"`
	Identity    *domain.DeviceIdentity `json:"identity,omitempty"`
	Absent      int                    `json:"absent"`
	Sample      *domain.SampleSet      `json:"sample,omitempty"`
}

// Store keeps the latest cycle report. It is written by the polling goroutine and read by the HTTP server.
type Store struct {
	mu     sync.RWMutex
	maxAge time.Duration
	now    func() time.Time

	startedAt   time.Time
	updatedAt   time.Time
	cycles      uint64
	idleCycles  uint64
	last        *domain.CycleReport
	lastSample  *domain.SampleSet
	periodStart time.Time
}

// NewStore creates a store that reports unhealthy once no cycle completed within maxAge.
func NewStore(maxAge time.Duration) *Store {
	return NewStoreWithClock(maxAge, time.Now)
}

func NewStoreWithClock(maxAge time.Duration, now func() time.Time) *Store {
	return &Store{
		maxAge:    maxAge,
		now:       now,
		startedAt: now(),
	}
}

func (s *Store) CycleCompleted(report domain.CycleReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	if report.State == domain.EngineStateIdle {
		s.idleCycles++
	}
	if report.NewPeriod {
		s.periodStart = report.Timestamp
	}
	if report.Sample != nil {
		sample := *report.Sample
		sample.PowerHistory = append([]float64(nil), report.Sample.PowerHistory...)
		s.lastSample = &sample
		s.periodStart = sample.PeriodStart
	}
	s.last = &report
	s.updatedAt = s.now()
}

// Healthy reports whether the polling loop is alive. Idle cycles count as alive.
func (s *Store) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy()
}

func (s *Store) healthy() bool {
	ref := s.updatedAt
	if ref.IsZero() {
		ref = s.startedAt
	}
	return s.now().Sub(ref) <= s.maxAge
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		State:       domain.EngineStateIdle,
		Healthy:     s.healthy(),
		StartedAt:   s.startedAt,
		UpdatedAt:   s.updatedAt,
		Cycles:      s.cycles,
		IdleCycles:  s.idleCycles,
		PeriodStart: s.periodStart,
		Sample:      s.lastSample,
	}
	if s.last != nil {
		snap.State = s.last.State
		snap.Absent = s.last.Absent
		identity := s.last.Identity
		snap.Identity = &identity
	}
	return snap
}

// ensure interface compliance
var _ port.CycleObserver = (*Store)(nil)
