package cache

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEntry_FromResponseKeepsBodyReadable(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"posts":[]}`)),
	}

	entry, err := NewEntry(resp)
	if err != nil {
		t.Fatalf("NewEntry failed: %v", err)
	}
	if entry.Status != http.StatusOK {
		t.Fatalf("expected status 200, got %d", entry.Status)
	}
	if string(entry.Body) != `{"posts":[]}` {
		t.Fatalf("unexpected entry body: %q", entry.Body)
	}

	// The original response body must still be readable by the caller
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("re-read of response body failed: %v", err)
	}
	if string(body) != `{"posts":[]}` {
		t.Fatalf("response body consumed by NewEntry: %q", body)
	}
}

func TestEntry_CodecRoundTrip(t *testing.T) {
	entry := &Entry{
		Status: http.StatusOK,
		Header: http.Header{
			"Content-Type":  []string{"text/html; charset=utf-8"},
			"Cache-Control": []string{"no-cache"},
		},
		Body: []byte("<!doctype html>"),
	}

	data, err := EncodeEntry(entry)
	if err != nil {
		t.Fatalf("EncodeEntry failed: %v", err)
	}
	decoded, err := DecodeEntry(data)
	if err != nil {
		t.Fatalf("DecodeEntry failed: %v", err)
	}

	if decoded.Status != entry.Status {
		t.Fatalf("status mismatch: %d != %d", decoded.Status, entry.Status)
	}
	if got := decoded.Header.Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Fatalf("header lost in round trip: %q", got)
	}
	if string(decoded.Body) != "<!doctype html>" {
		t.Fatalf("body mismatch: %q", decoded.Body)
	}
}

func TestDecodeEntry_Garbage(t *testing.T) {
	if _, err := DecodeEntry([]byte("not json")); err == nil {
		t.Fatal("expected decode error for garbage input")
	}
}

func TestEntry_Response(t *testing.T) {
	entry := &Entry{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"image/png"}},
		Body:   []byte("png-bytes"),
	}

	req := httptest.NewRequest(http.MethodGet, "/icons/icon-192x192.png", nil)
	resp := entry.Response(req)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected content type: %q", resp.Header.Get("Content-Type"))
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "png-bytes" {
		t.Fatalf("unexpected body: %q", body)
	}
	if resp.Request != req {
		t.Fatal("response not linked to request")
	}
}
