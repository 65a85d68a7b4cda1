// Package report publishes per-transfer summaries.
package report

import (
	"errors"
	"time"

	"github.com/hannahoo/UCLA-CS-118/internal/core"
)

// Transfer outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeNotFound  = "not_found"
	OutcomeFailed    = "failed"
)

// Summary describes one finished transfer from one endpoint's point of view.
type Summary struct {
	Role     string        `json:"role"`
	Resource string        `json:"resource"`
	Peer     string        `json:"peer"`
	Path     string        `json:"path,omitempty"`
	Outcome  string        `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration_ns"`

	Bytes           int64 `json:"bytes"`
	FramesReceived  int   `json:"frames_received"`
	FramesSent      int   `json:"frames_sent"`
	Retransmissions int   `json:"retransmissions,omitempty"`
	CorruptDropped  int   `json:"corrupt_dropped"`
	OrderDropped    int   `json:"out_of_order_dropped"`
	AcksLost        int   `json:"acks_lost"`
	AcksCorrupted   int   `json:"acks_corrupted"`
}

// Finish stamps the duration and derives the outcome from err.
func (s *Summary) Finish(err error) {
	s.Duration = time.Since(s.Started)
	switch {
	case err == nil:
		s.Outcome = OutcomeCompleted
		s.Error = ""
	case errors.Is(err, core.ErrResourceNotFound):
		s.Outcome = OutcomeNotFound
		s.Error = err.Error()
	default:
		s.Outcome = OutcomeFailed
		s.Error = err.Error()
	}
}
