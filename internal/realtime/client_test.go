package realtime

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type fakeTransport struct {
	mu     sync.Mutex
	writes []Frame

	in    chan Frame
	errc  chan error
	close sync.Once
	done  chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:   make(chan Frame, 16),
		errc: make(chan error, 1),
		done: make(chan struct{}),
	}
}

func (t *fakeTransport) ReadFrame() (Frame, error) {
	select {
	case f := <-t.in:
		return f, nil
	case err := <-t.errc:
		return Frame{}, err
	case <-t.done:
		return Frame{}, io.EOF
	}
}

func (t *fakeTransport) WriteFrame(f Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = append(t.writes, f)
	return nil
}

func (t *fakeTransport) Close() error {
	t.close.Do(func() { close(t.done) })
	return nil
}

func (t *fakeTransport) written() []Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Frame, len(t.writes))
	copy(out, t.writes)
	return out
}

// fakeDialer hands out transports from a script of outcomes, repeating
// the last outcome once the script runs out.
type fakeDialer struct {
	mu      sync.Mutex
	outcome []error
	dials   int
	tokens  []string
	last    *fakeTransport
}

func (d *fakeDialer) Dial(_ context.Context, _, token string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.dials
	d.dials++
	d.tokens = append(d.tokens, token)
	if len(d.outcome) > 0 {
		if i >= len(d.outcome) {
			i = len(d.outcome) - 1
		}
		if err := d.outcome[i]; err != nil {
			return nil, err
		}
	}
	d.last = newFakeTransport()
	return d.last, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) lastTransport() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// eventRecorder collects emitted payloads and lets tests wait for them.
type eventRecorder struct {
	mu     sync.Mutex
	events []any
	ch     chan any
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ch: make(chan any, 16)}
}

func (r *eventRecorder) handler(payload any) {
	r.mu.Lock()
	r.events = append(r.events, payload)
	r.mu.Unlock()
	r.ch <- payload
}

func (r *eventRecorder) wait(t *testing.T) any {
	t.Helper()
	select {
	case p := <-r.ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
		return nil
	}
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newTestClient(d Dialer, opts ...func(*Config)) *Client {
	cfg := Config{
		Endpoint:    "ws://backend.test/ws",
		Dialer:      d,
		BackoffBase: time.Millisecond,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return NewClient(cfg)
}

func TestConnectJoinsAndEmitsConnect(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(d)
	defer c.Disconnect()

	connected := newEventRecorder()
	c.On(ChannelConnect, connected.handler)

	if err := c.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	connected.wait(t)

	if got := c.State(); got != StateConnected {
		t.Fatalf("state = %v, want connected", got)
	}
	writes := d.lastTransport().written()
	if len(writes) != 1 || writes[0].Type != "join" {
		t.Fatalf("writes = %+v, want single join frame", writes)
	}
}

func TestInboundFramesDispatchTypedPayloads(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(d)
	defer c.Disconnect()

	posts := newEventRecorder()
	c.On(ChannelNewPost, posts.handler)

	if err := c.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	d.lastTransport().in <- Frame{
		Type:    "new_post",
		Payload: []byte(`{"post_id":"p1","author_id":"a1","body":"hi"}`),
	}

	raw := posts.wait(t)
	p, ok := raw.(NewPost)
	if !ok {
		t.Fatalf("payload type = %T, want NewPost", raw)
	}
	if p.PostID != "p1" || p.AuthorID != "a1" {
		t.Fatalf("payload = %+v", p)
	}
	if p.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt not defaulted")
	}
}

func TestUnknownFrameTypeDropped(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(d)
	defer c.Disconnect()

	posts := newEventRecorder()
	c.On(ChannelNewPost, posts.handler)

	if err := c.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ft := d.lastTransport()
	ft.in <- Frame{Type: "mystery", Payload: []byte(`{}`)}
	ft.in <- Frame{Type: "new_post", Payload: []byte(`{"post_id":"p2"}`)}

	p := posts.wait(t).(NewPost)
	if p.PostID != "p2" {
		t.Fatalf("got %+v, want the frame after the unknown one", p)
	}
	if posts.count() != 1 {
		t.Fatalf("events = %d, want 1", posts.count())
	}
}

func TestDuplicateRegistrationInvokesOnce(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(d)
	defer c.Disconnect()

	var calls atomic.Int32
	done := make(chan struct{}, 4)
	h := func(any) {
		calls.Add(1)
		done <- struct{}{}
	}
	c.On(ChannelNewPost, h)
	c.On(ChannelNewPost, h)

	if err := c.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	d.lastTransport().in <- Frame{Type: "new_post", Payload: []byte(`{"post_id":"p1"}`)}

	<-done
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("handler invoked %d times, want 1", got)
	}
}

func TestOffUnregisteredHandlerIsNoop(t *testing.T) {
	c := newTestClient(&fakeDialer{})
	c.Off(ChannelNewPost, func(any) {})
	c.Off("", nil)
}

func TestListenerPanicIsIsolated(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(d)
	defer c.Disconnect()

	survivor := newEventRecorder()
	c.On(ChannelNewPost, func(any) { panic("listener bug") })
	c.On(ChannelNewPost, survivor.handler)

	if err := c.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ft := d.lastTransport()
	ft.in <- Frame{Type: "new_post", Payload: []byte(`{"post_id":"p1"}`)}
	survivor.wait(t)

	// The reader must survive the panic and keep dispatching.
	ft.in <- Frame{Type: "new_post", Payload: []byte(`{"post_id":"p2"}`)}
	survivor.wait(t)
}

func TestAuthFailureStopsReconnection(t *testing.T) {
	d := &fakeDialer{outcome: []error{
		&Error{Code: CodeAuthFailure, Err: errors.New("401")},
	}}
	c := newTestClient(d)

	authErrs := newEventRecorder()
	c.On(ChannelAuthError, authErrs.handler)

	err := c.Connect(context.Background(), "tok")
	if Classify(err) != CodeAuthFailure {
		t.Fatalf("Connect err = %v, want auth failure", err)
	}
	authErrs.wait(t)

	time.Sleep(100 * time.Millisecond)
	if got := d.dialCount(); got != 1 {
		t.Fatalf("dials = %d, want 1 (no retry on auth failure)", got)
	}
	if got := authErrs.count(); got != 1 {
		t.Fatalf("authError events = %d, want 1", got)
	}
	if got := c.State(); got != StateDisconnected {
		t.Fatalf("state = %v, want disconnected", got)
	}
}

func TestCleanServerCloseIsSessionExpiry(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(d)

	authErrs := newEventRecorder()
	disconnects := newEventRecorder()
	c.On(ChannelAuthError, authErrs.handler)
	c.On(ChannelDisconnect, disconnects.handler)

	if err := c.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	d.lastTransport().errc <- io.EOF

	disconnects.wait(t)
	authErrs.wait(t)

	time.Sleep(100 * time.Millisecond)
	if got := d.dialCount(); got != 1 {
		t.Fatalf("dials = %d, want 1 (no redial after clean close)", got)
	}
}

func TestReconnectStopsAtAttemptCap(t *testing.T) {
	d := &fakeDialer{outcome: []error{
		&Error{Code: CodeTransient, Err: errors.New("refused")},
	}}
	c := newTestClient(d, func(cfg *Config) {
		cfg.MaxReconnectAttempts = 3
	})
	defer c.Disconnect()

	if err := c.Connect(context.Background(), "tok"); err == nil {
		t.Fatalf("Connect should fail against a dead backend")
	}

	deadline := time.Now().Add(2 * time.Second)
	want := 1 + 3 // initial dial plus capped retries
	for d.dialCount() < want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	if got := d.dialCount(); got != want {
		t.Fatalf("dials = %d, want %d", got, want)
	}
	if got := c.State(); got != StateDisconnected {
		t.Fatalf("state = %v, want disconnected after exhaustion", got)
	}
}

func TestReconnectUsesFreshestToken(t *testing.T) {
	d := &fakeDialer{outcome: []error{
		&Error{Code: CodeTransient, Err: errors.New("refused")},
		nil,
	}}
	var current atomic.Value
	current.Store("tok-1")
	c := newTestClient(d, func(cfg *Config) {
		cfg.TokenSource = TokenSourceFunc(func() string {
			return current.Load().(string)
		})
	})
	defer c.Disconnect()

	connected := newEventRecorder()
	c.On(ChannelConnect, connected.handler)

	if err := c.Connect(context.Background(), "tok-1"); err == nil {
		t.Fatalf("first dial should fail")
	}
	current.Store("tok-2")
	connected.wait(t)

	d.mu.Lock()
	tokens := append([]string(nil), d.tokens...)
	d.mu.Unlock()
	if len(tokens) < 2 || tokens[0] != "tok-1" || tokens[1] != "tok-2" {
		t.Fatalf("dial tokens = %v, want refreshed token on retry", tokens)
	}
}

func TestExplicitConnectResetsBudget(t *testing.T) {
	d := &fakeDialer{outcome: []error{
		&Error{Code: CodeTransient, Err: errors.New("refused")},
	}}
	c := newTestClient(d, func(cfg *Config) {
		cfg.MaxReconnectAttempts = 1
	})
	defer c.Disconnect()

	_ = c.Connect(context.Background(), "tok")
	deadline := time.Now().Add(2 * time.Second)
	for d.dialCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// A fresh Connect gets its own retry budget.
	_ = c.Connect(context.Background(), "tok")
	deadline = time.Now().Add(2 * time.Second)
	for d.dialCount() < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := d.dialCount(); got != 4 {
		t.Fatalf("dials = %d, want 4 (two budgets of 1+1)", got)
	}
}

func TestDisconnectLeavesAndIsIdempotent(t *testing.T) {
	d := &fakeDialer{}
	c := newTestClient(d)

	connected := newEventRecorder()
	disconnects := newEventRecorder()
	c.On(ChannelConnect, connected.handler)
	c.On(ChannelDisconnect, disconnects.handler)

	if err := c.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	connected.wait(t)
	ft := d.lastTransport()

	c.Disconnect()
	c.Disconnect()

	disconnects.wait(t)
	time.Sleep(50 * time.Millisecond)
	if got := disconnects.count(); got != 1 {
		t.Fatalf("disconnect events = %d, want 1", got)
	}

	var leaves int
	for _, f := range ft.written() {
		if f.Type == "leave" {
			leaves++
		}
	}
	if leaves != 1 {
		t.Fatalf("leave frames = %d, want 1", leaves)
	}
	if got := c.State(); got != StateDisconnected {
		t.Fatalf("state = %v, want disconnected", got)
	}

	// No reconnect after an explicit disconnect.
	time.Sleep(100 * time.Millisecond)
	if got := d.dialCount(); got != 1 {
		t.Fatalf("dials = %d, want 1", got)
	}
}

func TestExpiredTokenFailsBeforeDialing(t *testing.T) {
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	d := &fakeDialer{}
	c := newTestClient(d)

	authErrs := newEventRecorder()
	c.On(ChannelAuthError, authErrs.handler)

	cerr := c.Connect(context.Background(), expired)
	if Classify(cerr) != CodeAuthFailure {
		t.Fatalf("Connect err = %v, want auth failure", cerr)
	}
	authErrs.wait(t)
	if got := d.dialCount(); got != 0 {
		t.Fatalf("dials = %d, want 0 (expiry detected locally)", got)
	}
}

func TestOpaqueTokenIsNotClassifiedLocally(t *testing.T) {
	if tokenExpired("not-a-jwt") {
		t.Fatalf("opaque token misclassified as expired")
	}
	valid, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if tokenExpired(valid) {
		t.Fatalf("unexpired token misclassified")
	}
}

func TestClassifyDefaultsToTransient(t *testing.T) {
	if got := Classify(errors.New("plain")); got != CodeTransient {
		t.Fatalf("Classify = %v, want transient", got)
	}
	wrapped := &Error{Code: CodeAuthFailure, Err: errors.New("401")}
	if got := Classify(wrapped); got != CodeAuthFailure {
		t.Fatalf("Classify = %v, want auth failure", got)
	}
}
