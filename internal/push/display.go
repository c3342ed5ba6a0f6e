package push

import (
	"context"
	"log/slog"

	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/metrics"
)

// Displayer shows a notification to the user. The daemon's default
// implementation logs it; a fronting client replaces this with the
// platform notification surface.
type Displayer interface {
	Display(ctx context.Context, n Notification) error
}

// LogDisplayer writes notifications to the operational log.
type LogDisplayer struct {
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewLogDisplayer creates the logging notification sink.
func NewLogDisplayer(m *metrics.Metrics) *LogDisplayer {
	return &LogDisplayer{log: logging.Op(), metrics: m}
}

func (d *LogDisplayer) Display(_ context.Context, n Notification) error {
	d.log.Info("notification",
		"title", n.Title, "body", n.Body, "tag", n.Tag, "url", n.TargetURL)
	d.metrics.PushShown()
	return nil
}
