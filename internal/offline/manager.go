// Package offline implements the cache manager for the edge gateway: it
// decides per request whether to serve cache-first, network-first, or
// bypass caching entirely, and it owns the install/activate lifecycle
// that keeps exactly one versioned cache namespace alive per deployment
// generation.
package offline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/oriys/pulsar/internal/cache"
	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/manifest"
	"github.com/oriys/pulsar/internal/metrics"
)

// ActivationPublisher broadcasts the surviving namespace to other edge
// instances at activation time. *cache.Invalidator satisfies this.
type ActivationPublisher interface {
	PublishActivation(ctx context.Context, namespace string) error
}

// Config holds the dependencies and settings for a Manager.
type Config struct {
	Store     cache.Store
	Namespace string            // active cache generation, e.g. "app-cache-v2"
	Origin    string            // base URL of the origin backend
	APIPrefix string            // paths under this prefix use network-first (default "/api/")
	Manifest  manifest.Manifest // core assets primed at install time
	Upstream  http.RoundTripper // defaults to http.DefaultTransport
	Publisher ActivationPublisher
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Manager applies caching strategies to requests and maintains the
// active cache namespace. It is an explicitly constructed service
// object; callers own its lifecycle.
type Manager struct {
	store     cache.Store
	namespace string
	origin    *url.URL
	apiPrefix string
	manifest  manifest.Manifest
	upstream  http.RoundTripper
	publisher ActivationPublisher
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// New creates a Manager from the given config.
func New(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("offline: store is required")
	}
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("offline: namespace is required")
	}
	if cfg.Origin == "" {
		return nil, fmt.Errorf("offline: origin URL is required")
	}
	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("offline: parse origin URL: %w", err)
	}
	if origin.Scheme != "http" && origin.Scheme != "https" {
		return nil, fmt.Errorf("offline: origin URL must be http or https, got %q", cfg.Origin)
	}

	apiPrefix := cfg.APIPrefix
	if apiPrefix == "" {
		apiPrefix = "/api/"
	}
	upstream := cfg.Upstream
	if upstream == nil {
		upstream = http.DefaultTransport
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Op()
	}
	m := cfg.Manifest
	if len(m.Assets) == 0 {
		m = manifest.Default()
	}

	return &Manager{
		store:     cfg.Store,
		namespace: cfg.Namespace,
		origin:    origin,
		apiPrefix: apiPrefix,
		manifest:  m,
		upstream:  upstream,
		publisher: cfg.Publisher,
		log:       log,
		metrics:   cfg.Metrics,
	}, nil
}

// Namespace returns the active cache namespace name.
func (m *Manager) Namespace() string {
	return m.namespace
}

// Install primes the core asset manifest into the active namespace.
// Priming is best-effort per asset: an asset that fails to fetch is
// logged and skipped, and the rest still prime. Install only fails on
// store errors.
func (m *Manager) Install(ctx context.Context) error {
	primed, skipped := 0, 0
	for _, asset := range m.manifest.Assets {
		assetURL := *m.origin
		assetURL.Path = asset

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL.String(), nil)
		if err != nil {
			return fmt.Errorf("build prime request for %q: %w", asset, err)
		}

		resp, err := m.upstream.RoundTrip(req)
		if err != nil {
			m.log.Warn("asset prime fetch failed", "asset", asset, "error", err)
			skipped++
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			m.log.Warn("asset prime fetch returned non-2xx", "asset", asset, "status", resp.StatusCode)
			skipped++
			continue
		}

		entry, err := cache.NewEntry(resp)
		resp.Body.Close()
		if err != nil {
			m.log.Warn("asset prime read failed", "asset", asset, "error", err)
			skipped++
			continue
		}
		data, err := cache.EncodeEntry(entry)
		if err != nil {
			return fmt.Errorf("encode primed asset %q: %w", asset, err)
		}
		if err := m.store.Set(ctx, m.namespace, cacheKey(req), data); err != nil {
			return fmt.Errorf("store primed asset %q: %w", asset, err)
		}
		primed++
		m.metrics.AssetPrimed()
	}

	m.log.Info("cache install complete",
		"namespace", m.namespace, "primed", primed, "skipped", skipped)
	return nil
}

// Activate deletes every cache namespace except the active one, bounding
// storage growth across deployments, and broadcasts the activation so
// other instances drop superseded generations too. Idempotent.
func (m *Manager) Activate(ctx context.Context) error {
	names, err := m.store.Namespaces(ctx)
	if err != nil {
		return fmt.Errorf("enumerate namespaces: %w", err)
	}

	dropped := 0
	for _, name := range names {
		if name == m.namespace {
			continue
		}
		if err := m.store.DropNamespace(ctx, name); err != nil {
			return fmt.Errorf("drop namespace %q: %w", name, err)
		}
		dropped++
		m.metrics.NamespaceDropped()
	}

	if m.publisher != nil {
		if err := m.publisher.PublishActivation(ctx, m.namespace); err != nil {
			m.log.Warn("activation broadcast failed", "error", err)
		}
	}

	m.log.Info("cache activate complete", "namespace", m.namespace, "dropped", dropped)
	return nil
}

// cacheKey normalizes a request into its cache key: method plus the
// origin-relative URL. The key is host-independent so entries primed at
// install time match requests proxied later.
func cacheKey(req *http.Request) string {
	return req.Method + " " + req.URL.RequestURI()
}
