package receiver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hannahoo/UCLA-CS-118/internal/config"
	"github.com/hannahoo/UCLA-CS-118/internal/log"
	"github.com/hannahoo/UCLA-CS-118/internal/metrics"
	"github.com/hannahoo/UCLA-CS-118/internal/report"
	"github.com/hannahoo/UCLA-CS-118/internal/trace"
	"github.com/hannahoo/UCLA-CS-118/internal/transport"
)

// OutputPath is where Fetch stores resource.
func OutputPath(cfg config.ReceiverConfig, resource string) string {
	return filepath.Join(cfg.OutputDir, cfg.OutputPrefix+filepath.Base(resource))
}

// Fetch requests resource from the sender at cfg.Host:cfg.Port and stores it
// at OutputPath. The output file is created before the transfer starts and is
// left in place, possibly empty, when the transfer fails.
func Fetch(ctx context.Context, cfg config.ReceiverConfig, resource string) (report.Summary, error) {
	return fetch(ctx, cfg, resource, nil)
}

func fetch(ctx context.Context, cfg config.ReceiverConfig, resource string, sampler transport.Sampler) (summary report.Summary, err error) {
	logger := log.GetLogger().WithFields(map[string]interface{}{
		"resource": resource,
		"host":     cfg.Host,
		"port":     cfg.Port,
	})

	summary = report.Summary{
		Role:     metrics.RoleReceiver,
		Resource: resource,
		Peer:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     OutputPath(cfg, resource),
		Started:  time.Now(),
	}
	defer func() {
		summary.Finish(err)
		metrics.TransferDurationSeconds.WithLabelValues(metrics.RoleReceiver).Observe(summary.Duration.Seconds())
	}()

	var recorder *trace.Recorder
	if cfg.TraceFile != "" {
		recorder, err = trace.Create(cfg.TraceFile)
		if err != nil {
			return summary, err
		}
		defer func() {
			if cerr := recorder.Close(); cerr != nil {
				logger.WithError(cerr).Warn("failed to close trace file")
			}
		}()
	}

	tr, err := transport.Dial(ctx, cfg.Host, cfg.Port, cfg.TOS, transport.Options{
		Role:        metrics.RoleReceiver,
		ReadTimeout: cfg.ReadTimeout,
		Sampler:     sampler,
		Recorder:    recorder,
		Logger:      logger,
	})
	if err != nil {
		return summary, err
	}
	defer tr.Close()
	summary.Peer = tr.Peer().String()

	if err = tr.SendRaw([]byte(resource)); err != nil {
		return summary, err
	}

	out, err := os.Create(summary.Path)
	if err != nil {
		return summary, fmt.Errorf("create output file: %w", err)
	}

	sess := NewSession(tr, out, Options{
		Impairment: transport.Impairment{
			LossProbability:       cfg.LossProbability,
			CorruptionProbability: cfg.CorruptionProbability,
		},
		Logger: logger,
	})
	logger.WithField("output", summary.Path).Info("transfer started")

	err = sess.Run(ctx)
	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
	}

	st := sess.Stats()
	summary.Bytes = st.BytesWritten
	summary.FramesReceived = st.FramesReceived
	summary.FramesSent = st.AcksSent + st.AcksLost + st.AcksCorrupted
	summary.CorruptDropped = st.CorruptDropped
	summary.OrderDropped = st.OutOfOrderDropped
	summary.AcksLost = st.AcksLost
	summary.AcksCorrupted = st.AcksCorrupted

	if err != nil {
		logger.WithError(err).WithField("state", sess.State().String()).Warn("transfer ended without completing")
		return summary, err
	}
	logger.WithField("bytes", st.BytesWritten).Info("transfer completed")
	return summary, nil
}
