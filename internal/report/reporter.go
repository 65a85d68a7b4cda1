package report

import (
	"context"
	"fmt"
	"os"

	"github.com/hannahoo/UCLA-CS-118/internal/config"
	"github.com/hannahoo/UCLA-CS-118/internal/log"
)

// Reporter delivers transfer summaries somewhere.
type Reporter interface {
	Name() string
	Report(ctx context.Context, s Summary) error
	Close() error
}

// New builds the reporter selected by cfg.Type.
func New(cfg config.ReportConfig) (Reporter, error) {
	switch cfg.Type {
	case "", "none":
		return nopReporter{}, nil
	case "console":
		return NewConsoleReporter(cfg.Format, os.Stdout, log.GetLogger())
	case "kafka":
		return NewKafkaReporter(cfg.Kafka)
	default:
		return nil, fmt.Errorf("unsupported reporter type: %s", cfg.Type)
	}
}

// Publish reports s and logs failures instead of returning them: a transfer
// never fails because its summary could not be delivered.
func Publish(ctx context.Context, r Reporter, s Summary) {
	if r == nil {
		return
	}
	if err := r.Report(ctx, s); err != nil {
		log.GetLogger().WithError(err).WithField("reporter", r.Name()).Warn("failed to report transfer summary")
	}
}

type nopReporter struct{}

func (nopReporter) Name() string                         { return "none" }
func (nopReporter) Report(context.Context, Summary) error { return nil }
func (nopReporter) Close() error                         { return nil }
