package snapshot

import (
	"context"
	"fmt"
	"image"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cjeanneret/lifelog/internal/hw/camera"
)

// scriptedTicker yields n ticks immediately, then ends.
type scriptedTicker struct {
	n int
}

func (s scriptedTicker) Ticks(ctx context.Context, _ time.Duration) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		for i := 0; i < s.n; i++ {
			if ctx.Err() != nil {
				return
			}
			if !yield(time.Unix(int64(i), 0)) {
				return
			}
		}
	}
}

// chanTicker yields one tick per value sent on C until ctx is cancelled.
type chanTicker struct {
	C chan time.Time
}

func (c chanTicker) Ticks(ctx context.Context, _ time.Duration) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-c.C:
				if !yield(t) {
					return
				}
			}
		}
	}
}

// scriptedCamera fails on the calls listed in fail (1-based) and returns a
// frame of the requested size otherwise. before runs at the start of each call.
type scriptedCamera struct {
	mu     sync.Mutex
	calls  int
	fail   map[int]error
	before func(call int)
}

func (c *scriptedCamera) TakePhoto(ctx context.Context, size camera.Size) (image.Image, error) {
	c.mu.Lock()
	c.calls++
	call := c.calls
	c.mu.Unlock()

	if c.before != nil {
		c.before(call)
	}
	if err, ok := c.fail[call]; ok {
		return nil, err
	}
	return image.NewRGBA(image.Rect(0, 0, size.Width, size.Height)), nil
}

func (c *scriptedCamera) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// recordingSaver records the sequence numbers it was asked to save.
type recordingSaver struct {
	mu   sync.Mutex
	seqs []uint64
	fn   func(ctx context.Context, seq uint64) (string, bool, error)
}

func (s *recordingSaver) Save(ctx context.Context, seq uint64, _ image.Image) (string, bool, error) {
	s.mu.Lock()
	s.seqs = append(s.seqs, seq)
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(ctx, seq)
	}
	return fmt.Sprintf("/snapshots/%d.jpg", seq), true, nil
}

func (s *recordingSaver) saved() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.seqs...)
}

func (s *recordingSaver) has(seq uint64) bool {
	for _, v := range s.saved() {
		if v == seq {
			return true
		}
	}
	return false
}

// recordingReporter records every event.
type recordingReporter struct {
	mu            sync.Mutex
	captureFailed map[uint64]error
	saveFailed    map[uint64]error
	skipped       []uint64
	saved         map[uint64]string
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{
		captureFailed: make(map[uint64]error),
		saveFailed:    make(map[uint64]error),
		saved:         make(map[uint64]string),
	}
}

func (r *recordingReporter) CaptureFailed(seq uint64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captureFailed[seq] = err
}

func (r *recordingReporter) SaveSkipped(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped = append(r.skipped, seq)
}

func (r *recordingReporter) SaveFailed(seq uint64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saveFailed[seq] = err
}

func (r *recordingReporter) Saved(seq uint64, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved[seq] = path
}

func (r *recordingReporter) counts() (captureFailed, saveFailed, skipped, saved int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.captureFailed), len(r.saveFailed), len(r.skipped), len(r.saved)
}

// recordingSelector is a FileSelector over a temp dir that records calls.
type recordingSelector struct {
	dir         string
	unavailable bool
	allocErr    error
	deployErr   error

	mu        sync.Mutex
	allocated int
	deployed  []string
	discarded []string
}

func (s *recordingSelector) JPGPath(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allocErr != nil {
		return "", false, s.allocErr
	}
	if s.unavailable {
		return "", false, nil
	}
	s.allocated++
	return filepath.Join(s.dir, fmt.Sprintf("%03d.jpg", s.allocated)), true, nil
}

func (s *recordingSelector) Deploy(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deployErr != nil {
		return s.deployErr
	}
	s.deployed = append(s.deployed, path)
	return nil
}

func (s *recordingSelector) Discard(path string) {
	s.mu.Lock()
	s.discarded = append(s.discarded, path)
	s.mu.Unlock()
	os.Remove(path)
}

func (s *recordingSelector) deployCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deployed)
}
