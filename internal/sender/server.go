// Package sender serves files to receivers over the stop-and-wait protocol.
package sender

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hannahoo/UCLA-CS-118/internal/config"
	"github.com/hannahoo/UCLA-CS-118/internal/core"
	"github.com/hannahoo/UCLA-CS-118/internal/log"
	"github.com/hannahoo/UCLA-CS-118/internal/metrics"
	"github.com/hannahoo/UCLA-CS-118/internal/protocol"
	"github.com/hannahoo/UCLA-CS-118/internal/report"
	"github.com/hannahoo/UCLA-CS-118/internal/trace"
	"github.com/hannahoo/UCLA-CS-118/internal/transport"
)

// Options carries the optional collaborators of a Server.
type Options struct {
	Reporter report.Reporter
	Sampler  transport.Sampler
	Logger   log.Logger
}

// Server answers resource requests one at a time.
type Server struct {
	cfg      config.SenderConfig
	imp      transport.Impairment
	tr       *transport.Transport
	recorder *trace.Recorder
	reporter report.Reporter
	logger   log.Logger
}

// NewServer binds cfg.Listen.
func NewServer(ctx context.Context, cfg config.SenderConfig, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}

	var recorder *trace.Recorder
	if cfg.TraceFile != "" {
		r, err := trace.Create(cfg.TraceFile)
		if err != nil {
			return nil, err
		}
		recorder = r
	}

	tr, err := transport.Listen(ctx, cfg.Listen, cfg.TOS, transport.Options{
		Role:       metrics.RoleSender,
		FilterPeer: true,
		Sampler:    opts.Sampler,
		Recorder:   recorder,
		Logger:     logger,
	})
	if err != nil {
		if recorder != nil {
			recorder.Close()
		}
		return nil, err
	}

	return &Server{
		cfg: cfg,
		imp: transport.Impairment{
			LossProbability:       cfg.LossProbability,
			CorruptionProbability: cfg.CorruptionProbability,
		},
		tr:       tr,
		recorder: recorder,
		reporter: opts.Reporter,
		logger:   logger,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr { return s.tr.LocalAddr() }

// Serve handles requests until ctx is cancelled. A failed transfer is
// reported and logged; it does not stop the server.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.WithFields(map[string]interface{}{
		"listen":     s.Addr().String(),
		"root":       s.cfg.Root,
		"impairment": s.imp.String(),
	}).Info("sender ready")

	for {
		s.tr.SetPeer(nil)
		s.tr.SetReadTimeout(0)

		req, peer, err := s.tr.ReceiveRaw(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		resource := strings.TrimRight(string(req), "\x00")
		// Requests are plain names. Late acks from a finished transfer always
		// carry NUL bytes in their header.
		if resource == "" || strings.ContainsRune(resource, 0) {
			s.logger.WithField("peer", peer.String()).Debug("ignoring datagram that is not a request")
			continue
		}

		summary, err := s.Transfer(ctx, peer, resource)
		report.Publish(ctx, s.reporter, summary)
		if err != nil && ctx.Err() != nil {
			return nil
		}
	}
}

// Transfer sends resource to peer and waits for every unit to be
// acknowledged.
func (s *Server) Transfer(ctx context.Context, peer net.Addr, resource string) (summary report.Summary, err error) {
	logger := s.logger.WithFields(map[string]interface{}{
		"peer":     peer.String(),
		"resource": resource,
	})
	summary = report.Summary{
		Role:     metrics.RoleSender,
		Resource: resource,
		Peer:     peer.String(),
		Started:  time.Now(),
	}
	defer func() {
		summary.Finish(err)
		metrics.TransferDurationSeconds.WithLabelValues(metrics.RoleSender).Observe(summary.Duration.Seconds())
		switch {
		case err == nil:
			logger.WithFields(map[string]interface{}{
				"bytes":           summary.Bytes,
				"retransmissions": summary.Retransmissions,
				"duration":        summary.Duration.String(),
			}).Info("transfer completed")
		case errors.Is(err, core.ErrResourceNotFound):
			logger.Info("resource not found")
		default:
			logger.WithError(err).Warn("transfer failed")
		}
	}()

	s.tr.SetPeer(peer)

	src, err := openResource(s.cfg.Root, resource)
	if err != nil {
		logger.WithError(err).Debug("cannot serve resource")
		if _, serr := s.tr.SendFrame(protocol.NotFound(), transport.NoImpairment); serr != nil {
			return summary, serr
		}
		summary.FramesSent++
		return summary, fmt.Errorf("%w: %s", core.ErrResourceNotFound, resource)
	}
	defer src.Close()
	summary.Path = src.Name()

	for {
		unit, err := src.Next()
		if err != nil {
			return summary, err
		}
		if err := s.deliver(ctx, unit, &summary); err != nil {
			return summary, err
		}
		if unit.IsFin() {
			return summary, nil
		}
		summary.Bytes += int64(unit.Length)
	}
}
