package push

import (
	"context"
	"log/slog"
	"strings"

	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/metrics"
)

// Client is one open application window.
type Client interface {
	// URL returns the window's current location.
	URL() string
	// Focus brings the window to the foreground.
	Focus(ctx context.Context) error
	// Navigate points the window at a new URL.
	Navigate(ctx context.Context, url string) error
}

// ClientList enumerates open application windows and can open new ones.
type ClientList interface {
	Clients(ctx context.Context) ([]Client, error)
	OpenWindow(ctx context.Context, url string) error
}

// Router turns notification clicks into window focus/navigation.
type Router struct {
	origin  string // app origin, e.g. "https://app.example.com"
	clients ClientList
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewRouter creates a click router for the given app origin.
func NewRouter(origin string, clients ClientList, m *metrics.Metrics) *Router {
	return &Router{
		origin:  strings.TrimSuffix(origin, "/"),
		clients: clients,
		log:     logging.Op(),
		metrics: m,
	}
}

// Click handles a notification click. A dismiss closes the notification
// with no navigation. An open (or a bare click, which arrives with an
// empty action) focuses the first window already on the app origin and
// navigates it to the target; with no such window it opens a new one.
func (r *Router) Click(ctx context.Context, action string, p Payload) error {
	if action == ActionDismiss {
		r.metrics.PushClicked(ActionDismiss)
		return nil
	}
	r.metrics.PushClicked(ActionOpen)

	target := r.origin + p.Data.URL

	windows, err := r.clients.Clients(ctx)
	if err != nil {
		return err
	}
	for _, w := range windows {
		if !strings.HasPrefix(w.URL(), r.origin) {
			continue
		}
		if err := w.Focus(ctx); err != nil {
			r.log.Warn("window focus failed", "url", w.URL(), "error", err)
			continue
		}
		return w.Navigate(ctx, target)
	}

	return r.clients.OpenWindow(ctx, target)
}
