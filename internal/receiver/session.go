// Package receiver implements the receiving side of a stop-and-wait file
// transfer.
package receiver

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/hannahoo/UCLA-CS-118/internal/core"
	"github.com/hannahoo/UCLA-CS-118/internal/log"
	"github.com/hannahoo/UCLA-CS-118/internal/metrics"
	"github.com/hannahoo/UCLA-CS-118/internal/protocol"
	"github.com/hannahoo/UCLA-CS-118/internal/transport"
)

// State is the receiver's position in a transfer.
type State int

const (
	AwaitingFirstFrame State = iota
	ReceivingData
	Terminated
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitingFirstFrame:
		return "awaiting_first_frame"
	case ReceivingData:
		return "receiving_data"
	case Terminated:
		return "terminated"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further frames will be processed.
func (s State) Terminal() bool { return s == Terminated || s == Failed }

// FrameConn is the frame transport a Session drives.
type FrameConn interface {
	ReceiveFrame(ctx context.Context) (protocol.Frame, int, error)
	SendFrame(f protocol.Frame, imp transport.Impairment) (transport.Outcome, error)
}

// Stats counts what a session did with the frames it saw.
type Stats struct {
	FramesReceived    int
	CorruptDropped    int
	OutOfOrderDropped int
	AcksSent          int
	AcksLost          int
	AcksCorrupted     int
	BytesWritten      int64
}

// Options configures a Session.
type Options struct {
	// Impairment applies to ordinary acks. The final ack is never impaired.
	Impairment transport.Impairment
	Logger     log.Logger
}

// Session is the receiver state machine for one transfer.
type Session struct {
	conn     FrameConn
	sink     io.Writer
	imp      transport.Impairment
	logger   log.Logger
	state    State
	expected int32
	stats    Stats
}

// NewSession creates a session that appends accepted payloads to sink.
func NewSession(conn FrameConn, sink io.Writer, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Session{
		conn:   conn,
		sink:   sink,
		imp:    opts.Impairment,
		logger: logger,
		state:  AwaitingFirstFrame,
	}
}

func (s *Session) State() State          { return s.state }
func (s *Session) ExpectedOffset() int32 { return s.expected }
func (s *Session) Stats() Stats          { return s.stats }

// Run steps the session until it terminates or fails.
func (s *Session) Run(ctx context.Context) error {
	for !s.state.Terminal() {
		if err := s.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Step receives and handles exactly one frame. Discarded frames are not
// errors; only failures that end the session are returned.
func (s *Session) Step(ctx context.Context) error {
	if s.state.Terminal() {
		return nil
	}

	f, _, err := s.conn.ReceiveFrame(ctx)
	if err != nil {
		return s.fail(err)
	}
	s.stats.FramesReceived++

	logger := s.logger.WithField("frame", f.String())

	if s.state == AwaitingFirstFrame && f.Seq == 0 && f.IsFin() {
		logger.Info("sender reports resource not found")
		return s.fail(core.ErrResourceNotFound)
	}

	if f.IsCorrupted() {
		s.stats.CorruptDropped++
		metrics.FramesDroppedTotal.WithLabelValues(metrics.RoleReceiver, metrics.DropCorrupted).Inc()
		logger.Debug("discarding corrupted frame")
		return nil
	}

	if !s.inWindow(f.Seq) {
		s.stats.OutOfOrderDropped++
		metrics.FramesDroppedTotal.WithLabelValues(metrics.RoleReceiver, metrics.DropOutOfOrder).Inc()
		logger.WithField("expected", s.expected).Debug("discarding frame outside window")
		return nil
	}

	if f.IsFin() {
		if err := s.write(f.Payload); err != nil {
			return s.fail(err)
		}
		if _, err := s.conn.SendFrame(protocol.NewAck(f, true), transport.NoImpairment); err != nil {
			return s.fail(err)
		}
		s.stats.AcksSent++
		s.state = Terminated
		logger.Debug("final ack sent")
		return nil
	}

	if s.expected > math.MaxInt32-protocol.MaxPayload {
		return s.fail(fmt.Errorf("%w: seq %d leaves no room for another unit", core.ErrMalformedHeader, f.Seq))
	}

	out, err := s.conn.SendFrame(protocol.NewAck(f, false), s.imp)
	if err != nil {
		return s.fail(err)
	}
	switch out.Kind {
	case transport.OutcomeLost:
		s.stats.AcksLost++
		logger.Debug("ack lost, frame not accepted")
		return nil
	case transport.OutcomeCorrupted:
		s.stats.AcksCorrupted++
		logger.Debug("ack corrupted, frame not accepted")
		return nil
	}
	s.stats.AcksSent++

	if err := s.write(f.Payload); err != nil {
		return s.fail(err)
	}
	s.expected += protocol.MaxPayload
	s.state = ReceivingData
	logger.WithField("expected", s.expected).Trace("frame accepted")
	return nil
}

// inWindow accepts seq in (expected-MaxPayload, expected].
func (s *Session) inWindow(seq int32) bool {
	return seq > s.expected-protocol.MaxPayload && seq <= s.expected
}

func (s *Session) write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	n, err := s.sink.Write(p)
	s.stats.BytesWritten += int64(n)
	metrics.BytesWrittenTotal.Add(float64(n))
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrSinkWrite, err)
	}
	return nil
}

func (s *Session) fail(err error) error {
	s.state = Failed
	return err
}
