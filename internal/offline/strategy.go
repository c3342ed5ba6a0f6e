package offline

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/oriys/pulsar/internal/cache"
	"github.com/oriys/pulsar/internal/observability"
)

// Strategy is the caching policy selected for a request.
type Strategy string

const (
	// StrategyBypass passes the request straight to the upstream with no
	// cache interaction. Used for non-network URL schemes and for
	// non-API requests in local development, where serving stale bundled
	// assets would fight the dev server.
	StrategyBypass Strategy = "bypass"

	// StrategyCacheFirst prefers a stored response, touching the network
	// only on a miss. Favors latency and offline availability for the
	// static application shell.
	StrategyCacheFirst Strategy = "cache_first"

	// StrategyNetworkFirst prefers a live response, falling back to a
	// stored one only when the network fails. Favors freshness for
	// dynamic API data.
	StrategyNetworkFirst Strategy = "network_first"
)

// Strategy selects the caching policy for a request.
func (m *Manager) Strategy(req *http.Request) Strategy {
	if scheme := req.URL.Scheme; scheme != "" && scheme != "http" && scheme != "https" {
		return StrategyBypass
	}

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	if isLoopback(host) {
		// Local development: only the API is intercepted.
		if strings.HasPrefix(req.URL.Path, m.apiPrefix) {
			return StrategyNetworkFirst
		}
		return StrategyBypass
	}

	if strings.HasPrefix(req.URL.Path, m.apiPrefix) {
		return StrategyNetworkFirst
	}
	return StrategyCacheFirst
}

// RoundTrip applies the selected strategy to the request. It implements
// http.RoundTripper so the manager can also be used as a caching
// transport in an http.Client.
func (m *Manager) RoundTrip(req *http.Request) (*http.Response, error) {
	strategy := m.Strategy(req)

	ctx, span := observability.StartSpan(req.Context(), "offline.fetch",
		observability.AttrCacheStrategy.String(string(strategy)),
		observability.AttrCacheNamespace.String(m.namespace),
	)
	defer span.End()
	req = req.WithContext(ctx)

	switch strategy {
	case StrategyCacheFirst:
		resp, err := m.cacheFirst(req)
		if err != nil {
			observability.SetSpanError(span, err)
		}
		return resp, err
	case StrategyNetworkFirst:
		return m.networkFirst(req), nil
	default:
		resp, err := m.upstream.RoundTrip(req)
		if err != nil {
			m.metrics.UpstreamError()
			observability.SetSpanError(span, err)
		}
		return resp, err
	}
}

// cacheFirst serves a stored response when one exists, otherwise fetches
// from the network and stores successful GET responses. A miss with an
// unreachable network propagates the fetch error: cache-first paths are
// expected to be primed or reliably fetchable.
func (m *Manager) cacheFirst(req *http.Request) (*http.Response, error) {
	key := cacheKey(req)

	data, err := m.store.Get(req.Context(), m.namespace, key)
	if err == nil {
		if entry, derr := cache.DecodeEntry(data); derr == nil {
			m.metrics.CacheHit(string(StrategyCacheFirst))
			return entry.Response(req), nil
		}
		// Undecodable entry: treat as a miss and overwrite below.
	} else if !errors.Is(err, cache.ErrNotFound) {
		return nil, err
	}

	m.metrics.CacheMiss(string(StrategyCacheFirst))
	resp, err := m.upstream.RoundTrip(req)
	if err != nil {
		m.metrics.UpstreamError()
		return nil, err
	}
	if err := m.storeResponse(req, resp, StrategyCacheFirst); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// networkFirst fetches from the network and stores successful GET
// responses; on any failure (network or storage) it falls back to the
// stored copy, or to a synthesized 503 Offline response when none
// exists. It never returns an error to the caller.
func (m *Manager) networkFirst(req *http.Request) *http.Response {
	key := cacheKey(req)

	resp, err := m.upstream.RoundTrip(req)
	if err == nil {
		serr := m.storeResponse(req, resp, StrategyNetworkFirst)
		if serr == nil {
			return resp
		}
		m.log.Warn("cache write failed, serving fallback", "key", key, "error", serr)
		resp.Body.Close()
	} else {
		m.metrics.UpstreamError()
	}

	if data, gerr := m.store.Get(req.Context(), m.namespace, key); gerr == nil {
		if entry, derr := cache.DecodeEntry(data); derr == nil {
			m.metrics.OfflineFallback()
			return entry.Response(req)
		}
	}

	m.metrics.OfflineSynthesized()
	return offlineResponse(req)
}

// storeResponse persists the response if and only if it is a successful
// GET; mutations are never cached. The response body remains readable.
func (m *Manager) storeResponse(req *http.Request, resp *http.Response, strategy Strategy) error {
	if req.Method != http.MethodGet {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}

	entry, err := cache.NewEntry(resp)
	if err != nil {
		return err
	}
	data, err := cache.EncodeEntry(entry)
	if err != nil {
		return err
	}
	if err := m.store.Set(req.Context(), m.namespace, cacheKey(req), data); err != nil {
		return err
	}
	m.metrics.CacheWrite(string(strategy))
	return nil
}

// offlineResponse synthesizes the fixed degraded response served when the
// network is unreachable and no cached copy exists.
func offlineResponse(req *http.Request) *http.Response {
	body := []byte("Offline")
	return &http.Response{
		StatusCode: http.StatusServiceUnavailable,
		Status:     "503 " + http.StatusText(http.StatusServiceUnavailable),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header: http.Header{
			"Content-Type": []string{"text/plain; charset=utf-8"},
		},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// isLoopback reports whether the host (with optional port) is a loopback
// address, i.e. a local-development context.
func isLoopback(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
