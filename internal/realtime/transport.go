package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"
)

// Transport is the live bidirectional connection to the notification
// backend. ReadFrame blocks until a frame arrives or the transport
// closes.
type Transport interface {
	ReadFrame() (Frame, error)
	WriteFrame(Frame) error
	Close() error
}

// Dialer opens a transport authenticated with the given token. Dial
// errors carry a structured *Error so the client can decide whether to
// retry without inspecting error text.
type Dialer interface {
	Dial(ctx context.Context, endpoint, token string) (Transport, error)
}

// WebsocketDialer is the production Dialer: a websocket connection
// carrying JSON frames, with the session token as a bearer credential
// on the handshake.
type WebsocketDialer struct {
	// Origin is the HTTP origin sent with the websocket handshake.
	Origin string
}

func (d *WebsocketDialer) Dial(ctx context.Context, endpoint, token string) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Code: CodeTransient, Err: err}
	}

	origin := d.Origin
	if origin == "" {
		origin = "http://localhost/"
	}
	cfg, err := websocket.NewConfig(endpoint, origin)
	if err != nil {
		return nil, &Error{Code: CodeTransient, Err: err}
	}
	cfg.Header = http.Header{}
	cfg.Header.Set("Authorization", "Bearer "+token)

	conn, err := websocket.DialConfig(cfg)
	if err != nil {
		// A handshake the server answered but refused is a credential
		// problem; anything else (dial, DNS, reset) is transient.
		if errors.Is(err, websocket.ErrBadStatus) {
			return nil, &Error{Code: CodeAuthFailure, Err: err}
		}
		var de *websocket.DialError
		if errors.As(err, &de) && errors.Is(de.Err, websocket.ErrBadStatus) {
			return nil, &Error{Code: CodeAuthFailure, Err: err}
		}
		return nil, &Error{Code: CodeTransient, Err: err}
	}

	return newWSTransport(conn), nil
}

type wsTransport struct {
	conn *websocket.Conn
	dec  *json.Decoder
	wmu  sync.Mutex
	enc  *json.Encoder
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{
		conn: conn,
		dec:  json.NewDecoder(conn),
		enc:  json.NewEncoder(conn),
	}
}

func (t *wsTransport) ReadFrame() (Frame, error) {
	var f Frame
	if err := t.dec.Decode(&f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func (t *wsTransport) WriteFrame(f Frame) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	return t.enc.Encode(f)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
