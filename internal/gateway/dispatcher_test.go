// Docs - Collaborative Editing Realtime Gateway
// Copyright 2026 DINUM / La Suite numérique
// SPDX-License-Identifier: MIT
// https://github.com/suitenumerique/docs

package gateway

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/suitenumerique/docs-sub001/internal/access"
	"github.com/suitenumerique/docs-sub001/internal/logging"
	"github.com/suitenumerique/docs-sub001/internal/relay"
	"github.com/suitenumerique/docs-sub001/internal/websocket"
)

type joinCall struct {
	room string
	info relay.PeerInfo
}

// fakeRelay and fakeHost start an echo client on the socket and record the
// call.
type fakeRelay struct {
	calls chan joinCall
}

func (f *fakeRelay) Join(roomID string, conn *websocket.Conn, info relay.PeerInfo) *websocket.Client {
	f.calls <- joinCall{room: roomID, info: info}
	return startEcho(conn)
}

type fakeHost struct {
	calls chan ConnectionContext
	panic atomic.Bool
}

func (f *fakeHost) Accept(conn *websocket.Conn, _ *http.Request, cc ConnectionContext) *websocket.Client {
	if f.panic.Load() {
		panic("document store exploded")
	}
	f.calls <- cc
	return startEcho(conn)
}

func startEcho(conn *websocket.Conn) *websocket.Client {
	c := websocket.NewClient(conn, websocket.Config{})
	c.Start(func(c *websocket.Client, p []byte) { c.Send(p) }, nil)
	return c
}

type dispatchFixture struct {
	client *spyClient
	relay  *fakeRelay
	host   *fakeHost
	server *httptest.Server
}

func newDispatchFixture(t *testing.T, client *spyClient, origins []string) *dispatchFixture {
	t.Helper()
	f := &dispatchFixture{
		client: client,
		relay:  &fakeRelay{calls: make(chan joinCall, 1)},
		host:   &fakeHost{calls: make(chan ConnectionContext, 1)},
	}
	d := NewDispatcher(NewGate(client, ""), f.relay, f.host, DispatcherConfig{AllowedOrigins: origins})
	f.server = httptest.NewServer(d)
	t.Cleanup(f.server.Close)
	return f
}

func (f *dispatchFixture) dial(t *testing.T, query string, h http.Header) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/collaboration/ws/" + query
	conn, resp, err := gorilla.DefaultDialer.Dial(url, h)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func expectClose(t *testing.T, conn *gorilla.Conn, code int, reason string) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var ce *gorilla.CloseError
	if !errors.As(err, &ce) {
		t.Fatalf("expected close error, got %v", err)
	}
	if ce.Code != code || ce.Text != reason {
		t.Errorf("close = %d %q, want %d %q", ce.Code, ce.Text, code, reason)
	}
}

func TestDispatcherMissingRoomNeverCallsBackend(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, &spyClient{}, []string{"*"})

	conn := f.dial(t, "", nil)
	expectClose(t, conn, websocket.CloseInvalidPayload, ReasonMissingRoom)

	if f.client.docCalls.Load() != 0 || f.client.userCalls.Load() != 0 {
		t.Error("backend consulted for a request without room")
	}
}

// lockedBuffer collects log lines written from the server goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Not parallel: it swaps the global logger.
func TestDispatcherLogsProtocolRejectionsAsWarnings(t *testing.T) {
	var out lockedBuffer
	logging.Init(logging.Config{Level: "debug", Format: "json", Output: &out})
	t.Cleanup(func() { logging.Init(logging.Config{Level: "disabled", Output: io.Discard}) })

	f := newDispatchFixture(t, &spyClient{}, []string{"*"})
	expectClose(t, f.dial(t, "", nil), websocket.CloseInvalidPayload, ReasonMissingRoom)
	expectClose(t, f.dial(t, "?room=not-a-uuid", nil), websocket.ClosePolicyViolation, ReasonUnauthorized)

	var rejected int
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if !strings.Contains(line, `"message":"connection rejected"`) {
			continue
		}
		rejected++
		if !strings.Contains(line, `"level":"warn"`) {
			t.Errorf("rejection not logged as warning: %s", line)
		}
	}
	if rejected != 2 {
		t.Errorf("logged %d rejections, want 2:\n%s", rejected, out.String())
	}
}

func TestDispatcherInvalidRoomNeverCallsBackend(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, &spyClient{}, []string{"*"})

	conn := f.dial(t, "?room=not-a-uuid", nil)
	expectClose(t, conn, websocket.ClosePolicyViolation, ReasonUnauthorized)

	if f.client.docCalls.Load() != 0 {
		t.Error("backend consulted for an invalid room id")
	}
}

func TestDispatcherBackendFailuresLookUnauthorized(t *testing.T) {
	t.Parallel()

	clients := map[string]*spyClient{
		"transport error": {docErr: errors.New("connection refused")},
		"forbidden":       {docErr: &access.StatusError{StatusCode: http.StatusForbidden}},
		"no retrieve":     {doc: &access.Document{}},
	}
	for name, client := range clients {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newDispatchFixture(t, client, []string{"*"})

			conn := f.dial(t, "?room="+testRoom, nil)
			expectClose(t, conn, websocket.ClosePolicyViolation, ReasonUnauthorized)

			select {
			case <-f.relay.calls:
				t.Error("rejected socket reached the relay")
			case <-f.host.calls:
				t.Error("rejected socket reached the CRDT server")
			default:
			}
		})
	}
}

func TestDispatcherRoutesEncryptedToRelay(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, &spyClient{
		doc:  &access.Document{Abilities: access.Abilities{Retrieve: true, Update: true}, IsEncrypted: true},
		user: &access.User{ID: "user-7"},
	}, []string{"*"})

	h := http.Header{}
	h.Set("Cookie", DefaultSessionCookie+"=s-7")
	conn := f.dial(t, "?room="+testRoom, h)

	select {
	case call := <-f.relay.calls:
		if call.room != testRoom || call.info.UserID != "user-7" || call.info.SessionKey != "s-7" {
			t.Errorf("relay join = %+v", call)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay never joined")
	}
	select {
	case <-f.host.calls:
		t.Error("encrypted document reached the CRDT server")
	default:
	}

	if err := conn.WriteMessage(gorilla.BinaryMessage, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, p, err := conn.ReadMessage(); err != nil || !bytes.Equal(p, []byte{1, 2, 3}) {
		t.Errorf("echo = %v, %v", p, err)
	}
}

func TestDispatcherRoutesPlaintextToCRDT(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, &spyClient{
		doc: &access.Document{Abilities: access.Abilities{Retrieve: true}},
	}, []string{"*"})

	f.dial(t, "?room="+testRoom, nil)

	select {
	case cc := <-f.host.calls:
		if cc.RoomID != testRoom || !cc.ReadOnly || cc.HasUser {
			t.Errorf("connection context = %+v", cc)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("CRDT server never accepted")
	}
	select {
	case <-f.relay.calls:
		t.Error("plaintext document reached the relay")
	default:
	}
}

func TestDispatcherPanicClosesWithInternalError(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, &spyClient{
		doc: &access.Document{Abilities: access.Abilities{Retrieve: true}},
	}, []string{"*"})
	f.host.panic.Store(true)

	conn := f.dial(t, "?room="+testRoom, nil)
	expectClose(t, conn, websocket.CloseInternalError, ReasonInternalError)
}

func TestDispatcherRejectsForeignOrigin(t *testing.T) {
	t.Parallel()
	f := newDispatchFixture(t, &spyClient{}, []string{"https://docs.example.org"})

	h := http.Header{}
	h.Set("Origin", "https://evil.example.com")
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/collaboration/ws/?room=" + testRoom
	conn, resp, err := gorilla.DefaultDialer.Dial(url, h)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err == nil {
		_ = conn.Close()
		t.Fatal("expected the handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("handshake response = %v", resp)
	}
	if f.client.docCalls.Load() != 0 {
		t.Error("backend consulted for a foreign origin")
	}
}
