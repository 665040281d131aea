package snapshot

import (
	"errors"
	"fmt"

	"github.com/cjeanneret/lifelog/internal/debug"
)

// Stage names the save step that failed.
type Stage string

const (
	StageAllocate Stage = "allocate"
	StageWrite    Stage = "write"
	StageDeploy   Stage = "deploy"
)

// SaveError is a failure of one save task.
type SaveError struct {
	Stage Stage
	Path  string // empty when allocation failed
	Err   error
}

func (e *SaveError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("save %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("save %s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// CaptureError is a failed capture on one tick.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string { return "capture: " + e.Err.Error() }

func (e *CaptureError) Unwrap() error { return e.Err }

// StageOf returns the failed stage of a save error, or "" if err is not one.
func StageOf(err error) Stage {
	var se *SaveError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// Reporter receives the outcome of every capture and save.
// Save callbacks run on save goroutines and must be safe for concurrent use.
type Reporter interface {
	CaptureFailed(seq uint64, err error)
	SaveSkipped(seq uint64)
	SaveFailed(seq uint64, err error)
	Saved(seq uint64, path string)
}

// LogReporter writes outcomes to the debug logger.
type LogReporter struct{}

func (LogReporter) CaptureFailed(seq uint64, err error) {
	debug.Errorf("Snapshot #%d: %v", seq, err)
}

func (LogReporter) SaveSkipped(seq uint64) {
	debug.Verbose("Snapshot #%d discarded: no destination available", seq)
}

func (LogReporter) SaveFailed(seq uint64, err error) {
	debug.Errorf("Snapshot #%d: %v", seq, err)
}

func (LogReporter) Saved(seq uint64, path string) {
	debug.Save(seq, path)
}

// Reporters fans every event out to each reporter in order.
type Reporters []Reporter

func (rs Reporters) CaptureFailed(seq uint64, err error) {
	for _, r := range rs {
		r.CaptureFailed(seq, err)
	}
}

func (rs Reporters) SaveSkipped(seq uint64) {
	for _, r := range rs {
		r.SaveSkipped(seq)
	}
}

func (rs Reporters) SaveFailed(seq uint64, err error) {
	for _, r := range rs {
		r.SaveFailed(seq, err)
	}
}

func (rs Reporters) Saved(seq uint64, path string) {
	for _, r := range rs {
		r.Saved(seq, path)
	}
}
