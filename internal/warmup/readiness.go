package warmup

import (
	"sync/atomic"
	"time"
)

// ReadinessState tracks whether the service may receive traffic.
//
// The service is ready once MarkReady is called or, as a fallback, once the
// grace timeout has elapsed so a slow artifact download cannot keep an
// instance out of rotation forever. Safe for concurrent use.
type ReadinessState struct {
	ready     atomic.Bool
	lastError atomic.Pointer[string]
	startTime time.Time
	timeout   time.Duration
}

// ReadinessStatus is the /readyz response body.
type ReadinessStatus struct {
	Ready          bool   `json:"ready"`
	Reason         string `json:"reason,omitempty"`
	LastError      string `json:"last_error,omitempty"`
	ElapsedSeconds int    `json:"elapsed_seconds,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// NewReadinessState starts the grace timer.
func NewReadinessState(timeout time.Duration) *ReadinessState {
	return &ReadinessState{
		startTime: time.Now(),
		timeout:   timeout,
	}
}

// IsReady reports whether warmup finished or the grace timeout elapsed.
func (s *ReadinessState) IsReady() bool {
	return s.ready.Load() || time.Since(s.startTime) >= s.timeout
}

// MarkReady records a successful warmup. Idempotent.
func (s *ReadinessState) MarkReady() {
	s.ready.Store(true)
	s.lastError.Store(nil)
}

// MarkFailed records why warmup did not finish. The state stays not ready
// until the grace timeout or a later MarkReady.
func (s *ReadinessState) MarkFailed(err error) {
	if err == nil {
		return
	}
	msg := err.Error()
	s.lastError.Store(&msg)
}

// WarmupCompleted reports whether MarkReady was called.
func (s *ReadinessState) WarmupCompleted() bool {
	return s.ready.Load()
}

// Status returns a snapshot for the readiness endpoint.
func (s *ReadinessState) Status() ReadinessStatus {
	status := ReadinessStatus{
		Ready:          s.IsReady(),
		ElapsedSeconds: int(time.Since(s.startTime).Seconds()),
		TimeoutSeconds: int(s.timeout.Seconds()),
	}
	if msg := s.lastError.Load(); msg != nil {
		status.LastError = *msg
	}

	switch {
	case !status.Ready:
		status.Reason = "warmup in progress"
	case !s.ready.Load():
		status.Reason = "timeout reached (warmup may still be running)"
	}
	return status
}
