package snapshot

import (
	"sync/atomic"
	"time"
)

// Stats counts pipeline events. It implements Reporter; the use case also
// feeds it ticks and save launches directly.
type Stats struct {
	started atomic.Int64 // unix nanos, 0 before the first run

	ticks          atomic.Uint64
	captured       atomic.Uint64
	captureFailed  atomic.Uint64
	launched       atomic.Uint64
	inFlight       atomic.Int64
	saved          atomic.Uint64
	skipped        atomic.Uint64
	allocateFailed atomic.Uint64
	writeFailed    atomic.Uint64
	deployFailed   atomic.Uint64

	lastPath atomic.Pointer[string]
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Started        time.Time `json:"started,omitzero"`
	Ticks          uint64    `json:"ticks"`
	Captured       uint64    `json:"captured"`
	CaptureFailed  uint64    `json:"capture_failed"`
	SavesLaunched  uint64    `json:"saves_launched"`
	SavesInFlight  int64     `json:"saves_in_flight"`
	Saved          uint64    `json:"saved"`
	Skipped        uint64    `json:"skipped"`
	AllocateFailed uint64    `json:"allocate_failed"`
	WriteFailed    uint64    `json:"write_failed"`
	DeployFailed   uint64    `json:"deploy_failed"`
	LastPath       string    `json:"last_path,omitempty"`
}

func (s *Stats) markStarted(t time.Time) { s.started.Store(t.UnixNano()) }
func (s *Stats) tick()                   { s.ticks.Add(1) }
func (s *Stats) captureOK()              { s.captured.Add(1) }

func (s *Stats) saveStarted() {
	s.launched.Add(1)
	s.inFlight.Add(1)
}

func (s *Stats) saveDone() { s.inFlight.Add(-1) }

func (s *Stats) CaptureFailed(uint64, error) { s.captureFailed.Add(1) }

func (s *Stats) SaveSkipped(uint64) { s.skipped.Add(1) }

func (s *Stats) SaveFailed(_ uint64, err error) {
	switch StageOf(err) {
	case StageAllocate:
		s.allocateFailed.Add(1)
	case StageDeploy:
		s.deployFailed.Add(1)
	default:
		s.writeFailed.Add(1)
	}
}

func (s *Stats) Saved(_ uint64, path string) {
	s.saved.Add(1)
	s.lastPath.Store(&path)
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	out := StatsSnapshot{
		Ticks:          s.ticks.Load(),
		Captured:       s.captured.Load(),
		CaptureFailed:  s.captureFailed.Load(),
		SavesLaunched:  s.launched.Load(),
		SavesInFlight:  s.inFlight.Load(),
		Saved:          s.saved.Load(),
		Skipped:        s.skipped.Load(),
		AllocateFailed: s.allocateFailed.Load(),
		WriteFailed:    s.writeFailed.Load(),
		DeployFailed:   s.deployFailed.Load(),
	}
	if ns := s.started.Load(); ns != 0 {
		out.Started = time.Unix(0, ns).UTC()
	}
	if p := s.lastPath.Load(); p != nil {
		out.LastPath = *p
	}
	return out
}
