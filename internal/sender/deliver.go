package sender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hannahoo/UCLA-CS-118/internal/core"
	"github.com/hannahoo/UCLA-CS-118/internal/metrics"
	"github.com/hannahoo/UCLA-CS-118/internal/protocol"
	"github.com/hannahoo/UCLA-CS-118/internal/report"
)

// deliver sends unit until a matching ack arrives, retransmitting after each
// timeout up to MaxRetries times.
func (s *Server) deliver(ctx context.Context, unit protocol.Frame, summary *report.Summary) error {
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if attempt > s.cfg.MaxRetries {
				return fmt.Errorf("%w: %s after %d attempts", core.ErrRetriesExhausted, unit, attempt)
			}
			summary.Retransmissions++
			metrics.RetransmissionsTotal.Inc()
		}

		out, err := s.tr.SendFrame(unit, s.imp)
		if err != nil {
			return err
		}
		summary.FramesSent++
		if s.logger.IsTraceEnabled() {
			s.logger.WithFields(map[string]interface{}{
				"frame":   unit.String(),
				"outcome": out.String(),
				"attempt": attempt,
			}).Trace("unit sent")
		}

		acked, err := s.awaitAck(ctx, unit, summary)
		if err != nil {
			return err
		}
		if acked {
			return nil
		}
	}
}

// awaitAck waits up to the retransmission timeout for the ack of unit.
// Stale, corrupted and malformed replies are skipped without extending the
// timeout.
func (s *Server) awaitAck(ctx context.Context, unit protocol.Frame, summary *report.Summary) (bool, error) {
	deadline := time.Now().Add(s.cfg.Timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		s.tr.SetReadTimeout(remaining)

		ack, _, err := s.tr.ReceiveFrame(ctx)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrReadTimeout):
			return false, nil
		case errors.Is(err, core.ErrMalformedHeader):
			s.logger.WithError(err).Debug("ignoring malformed reply")
			continue
		default:
			return false, err
		}
		summary.FramesReceived++

		if ack.IsCorrupted() {
			summary.AcksCorrupted++
			metrics.FramesDroppedTotal.WithLabelValues(metrics.RoleSender, metrics.DropCorrupted).Inc()
			continue
		}
		if ack.Ack != unit.End() || ack.IsFin() != unit.IsFin() {
			metrics.FramesDroppedTotal.WithLabelValues(metrics.RoleSender, metrics.DropStaleAck).Inc()
			s.logger.WithFields(map[string]interface{}{
				"ack":  ack.String(),
				"want": unit.End(),
			}).Debug("ignoring stale ack")
			continue
		}
		return true, nil
	}
}

// Close releases the socket and the trace file.
func (s *Server) Close() error {
	err := s.tr.Close()
	if s.recorder != nil {
		err = errors.Join(err, s.recorder.Close())
	}
	return err
}
