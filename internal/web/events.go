package web

import (
	"fmt"
)

// EventReporter publishes pipeline outcomes on the status stream.
// It satisfies snapshot.Reporter.
type EventReporter struct {
	B *StatusBroadcaster
}

func (r EventReporter) CaptureFailed(seq uint64, err error) {
	r.B.Publish(StatusEvent{Level: "error", Kind: "capture_failed", Seq: seq, Msg: err.Error()})
}

func (r EventReporter) SaveSkipped(seq uint64) {
	r.B.Publish(StatusEvent{Level: "info", Kind: "save_skipped", Seq: seq,
		Msg: fmt.Sprintf("snapshot #%d dropped: no destination available", seq)})
}

func (r EventReporter) SaveFailed(seq uint64, err error) {
	r.B.Publish(StatusEvent{Level: "error", Kind: "save_failed", Seq: seq, Msg: err.Error()})
}

func (r EventReporter) Saved(seq uint64, path string) {
	r.B.Publish(StatusEvent{Level: "info", Kind: "saved", Seq: seq, Path: path,
		Msg: fmt.Sprintf("snapshot #%d saved", seq)})
}
