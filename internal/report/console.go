package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/hannahoo/UCLA-CS-118/internal/log"
)

// ConsoleReporter prints summaries, either through the logger as text or as
// one JSON document per line on out.
type ConsoleReporter struct {
	format        string
	out           io.Writer
	logger        log.Logger
	reportedCount atomic.Uint64
}

// NewConsoleReporter creates a console reporter. format is "text" or "json".
func NewConsoleReporter(format string, out io.Writer, logger log.Logger) (*ConsoleReporter, error) {
	if format == "" {
		format = "text"
	}
	if format != "text" && format != "json" {
		return nil, fmt.Errorf("invalid format %q, must be json or text", format)
	}
	return &ConsoleReporter{format: format, out: out, logger: logger}, nil
}

func (r *ConsoleReporter) Name() string { return "console" }

// Report prints one summary.
func (r *ConsoleReporter) Report(ctx context.Context, s Summary) error {
	defer r.reportedCount.Add(1)

	if r.format == "json" {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("serialize summary failed: %w", err)
		}
		_, err = fmt.Fprintln(r.out, string(data))
		return err
	}

	r.logger.WithFields(map[string]interface{}{
		"role":     s.Role,
		"resource": s.Resource,
		"peer":     s.Peer,
		"outcome":  s.Outcome,
		"bytes":    s.Bytes,
		"duration": s.Duration.String(),
	}).Info("transfer summary")
	return nil
}

// Reported returns how many summaries were printed.
func (r *ConsoleReporter) Reported() uint64 { return r.reportedCount.Load() }

func (r *ConsoleReporter) Close() error { return nil }
