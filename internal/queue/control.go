package queue

import (
	"fmt"
	"time"
)

// RunOnWorker executes fn on the worker's own goroutine and blocks
// until it returns. The registry uses this to read or mutate session
// state (w.recovery in particular) that is otherwise only ever touched
// by the worker goroutine itself, instead of adding a second lock.
func (w *Worker) RunOnWorker(fn func(*Worker)) {
	done := make(chan struct{})
	w.control <- func() {
		fn(w)
		close(done)
	}
	<-done
}

// HasActiveRecoverySession reports whether a non-terminal recovery
// session is in progress. Call only from inside RunOnWorker.
func (w *Worker) HasActiveRecoverySession() bool {
	return w.recovery != nil && !w.recovery.State().Terminal()
}

// SuspendRecoveryForReconnect preserves the active recovery session
// across a USB identity reissue (spec §4.7) instead of tearing it
// down. Returns false if there is no active recovery session to
// suspend. Call only from inside RunOnWorker.
func (w *Worker) SuspendRecoveryForReconnect(window time.Duration) bool {
	if !w.HasActiveRecoverySession() {
		return false
	}
	w.recovery.SuspendForReconnect(window)
	return true
}

// ResumeRecoverySession restores a suspended recovery session once the
// matching device reattaches under a new canonical id. Call only from
// inside RunOnWorker.
func (w *Worker) ResumeRecoverySession(newCanonicalID string) error {
	if w.recovery == nil {
		return fmt.Errorf("queue: no suspended recovery session to resume")
	}
	if err := w.recovery.Resume(newCanonicalID); err != nil {
		return err
	}
	w.CanonicalID = newCanonicalID
	return nil
}

// StartRecoverySessionForTest seeds an in-progress recovery session
// without driving a real RecoveryDevice exchange, so registry tests can
// exercise the detach/reconnect preservation path (spec §4.7) without a
// scripted device reply sequence. Call only from inside RunOnWorker.
func (w *Worker) StartRecoverySessionForTest() {
	w.recovery = newRecoverySessionFor(w)
}

// RecoveryCursor reports the suspended session's last known
// (word_index, char_index), or (0, 0, false) if none is active. Call
// only from inside RunOnWorker.
func (w *Worker) RecoveryCursor() (wordIndex, charIndex int, ok bool) {
	if w.recovery == nil {
		return 0, 0, false
	}
	wi, ci := w.recovery.Cursor()
	return wi, ci, true
}
