package offline

import (
	"io"
	"net/http"
)

// hopHeaders are connection-scoped headers stripped before proxying.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ServeHTTP proxies the request to the origin through the caching
// strategies, making the manager mountable as the edge gateway handler.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	out := r.Clone(r.Context())
	out.URL.Scheme = m.origin.Scheme
	out.URL.Host = m.origin.Host
	out.RequestURI = ""
	for _, h := range hopHeaders {
		out.Header.Del(h)
	}

	resp, err := m.RoundTrip(out)
	if err != nil {
		m.log.Warn("proxy fetch failed", "path", r.URL.Path, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"bad_gateway","message":"origin fetch failed"}`))
		return
	}
	defer resp.Body.Close()

	header := w.Header()
	for k, vv := range resp.Header {
		for _, v := range vv {
			header.Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		m.log.Debug("response copy interrupted", "path", r.URL.Path, "error", err)
	}
}
