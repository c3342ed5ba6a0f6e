package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Entry is a stored HTTP response: status, headers, and body. Only
// successful GET responses are ever persisted as entries; mutations
// (POST/PUT/DELETE) must never be, or a replay would serve stale
// mutation results.
type Entry struct {
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body,omitempty"`
}

// NewEntry drains resp.Body into an Entry and replaces the body with a
// re-readable copy so the response can still be returned to the caller.
func NewEntry(resp *http.Response) (*Entry, error) {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return &Entry{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}

// Response materializes the entry as an *http.Response for the given request.
func (e *Entry) Response(req *http.Request) *http.Response {
	header := e.Header
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		StatusCode:    e.Status,
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// EncodeEntry serializes an entry for storage.
func EncodeEntry(e *Entry) ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEntry deserializes a stored entry.
func DecodeEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &e, nil
}
