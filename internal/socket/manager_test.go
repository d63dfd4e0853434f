package socket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/chatsync-go/internal/config"
)

// fakeServer accepts websocket connections, records the userId query of
// each one, and exposes the server side of the latest connection.
type fakeServer struct {
	t   *testing.T
	srv *httptest.Server

	mu     sync.Mutex
	users  []string
	conns  chan *websocket.Conn
	onOpen func(*websocket.Conn)
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{t: t, conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.users = append(fs.users, r.URL.Query().Get("userId"))
		onOpen := fs.onOpen
		fs.mu.Unlock()
		if onOpen != nil {
			onOpen(ws)
		}
		fs.conns <- ws
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http") + "/ws"
}

func (fs *fakeServer) next(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case ws := <-fs.conns:
		t.Cleanup(func() { ws.Close() })
		return ws
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

// handleRecorder collects every handle a Manager reports.
type handleRecorder struct {
	ch chan *Conn
}

func newHandleRecorder(m *Manager) *handleRecorder {
	r := &handleRecorder{ch: make(chan *Conn, 8)}
	m.Watch(func(c *Conn) { r.ch <- c })
	return r
}

func (r *handleRecorder) next(t *testing.T) *Conn {
	t.Helper()
	select {
	case c := <-r.ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no handle change observed")
		return nil
	}
}

func (r *handleRecorder) none(t *testing.T) {
	t.Helper()
	select {
	case c := <-r.ch:
		t.Fatalf("unexpected handle change: %v", c)
	case <-time.After(100 * time.Millisecond):
	}
}

func newTestManager(url string) *Manager {
	return NewManager(Options{URL: url, HandshakeTimeout: time.Second}, config.Discard())
}

func TestConnectPublishesHandle(t *testing.T) {
	fs := newFakeServer(t)
	m := newTestManager(fs.url())
	rec := newHandleRecorder(m)

	m.Connect(context.Background(), "u1")
	c := rec.next(t)
	require.NotNil(t, c)
	assert.Equal(t, "u1", c.Identity())
	assert.Same(t, c, m.Handle())

	fs.next(t)
	fs.mu.Lock()
	assert.Equal(t, []string{"u1"}, fs.users)
	fs.mu.Unlock()

	m.Disconnect()
}

func TestConnectSameIdentityIsNoop(t *testing.T) {
	fs := newFakeServer(t)
	m := newTestManager(fs.url())
	rec := newHandleRecorder(m)

	m.Connect(context.Background(), "u1")
	first := rec.next(t)
	fs.next(t)

	m.Connect(context.Background(), "u1")
	rec.none(t)
	assert.Same(t, first, m.Handle())

	m.Disconnect()
}

func TestEmptyIdentityDisconnects(t *testing.T) {
	fs := newFakeServer(t)
	m := newTestManager(fs.url())
	rec := newHandleRecorder(m)

	m.Connect(context.Background(), "u1")
	c := rec.next(t)
	fs.next(t)

	m.Connect(context.Background(), "")
	assert.Nil(t, rec.next(t))
	assert.Nil(t, m.Handle())
	assert.Equal(t, "", m.Identity())

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("old handle not closed")
	}
	assert.ErrorIs(t, c.Emit("sendMessage", map[string]string{}), ErrNotConnected)
}

func TestIdentityChangeReplacesConnection(t *testing.T) {
	fs := newFakeServer(t)
	m := newTestManager(fs.url())
	rec := newHandleRecorder(m)

	m.Connect(context.Background(), "u1")
	first := rec.next(t)
	fs.next(t)

	m.Connect(context.Background(), "u2")
	assert.Nil(t, rec.next(t), "old handle is released before the new one arrives")
	second := rec.next(t)
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
	assert.Equal(t, "u2", second.Identity())
	fs.next(t)

	m.Disconnect()
}

func TestInboundEventsReachSubscribersInOrder(t *testing.T) {
	fs := newFakeServer(t)
	fs.onOpen = func(ws *websocket.Conn) {
		for _, body := range []string{
			`{"event":"onlineUsers","data":["a"]}`,
			`not json`,
			`{"event":"onlineUsers","data":["a","b"]}`,
		} {
			_ = ws.WriteMessage(websocket.TextMessage, []byte(body))
		}
	}

	m := newTestManager(fs.url())
	got := make(chan []string, 4)
	m.Watch(func(c *Conn) {
		if c == nil {
			return
		}
		c.Subscribe("onlineUsers", func(data json.RawMessage) {
			var ids []string
			assert.NoError(t, json.Unmarshal(data, &ids))
			got <- ids
		})
	})

	m.Connect(context.Background(), "u1")
	fs.next(t)

	for _, want := range [][]string{{"a"}, {"a", "b"}} {
		select {
		case ids := <-got:
			assert.Equal(t, want, ids)
		case <-time.After(2 * time.Second):
			t.Fatal("event not delivered")
		}
	}
	m.Disconnect()
}

func TestEmitWritesEnvelope(t *testing.T) {
	fs := newFakeServer(t)
	m := newTestManager(fs.url())
	rec := newHandleRecorder(m)

	m.Connect(context.Background(), "u1")
	c := rec.next(t)
	ws := fs.next(t)

	require.NoError(t, c.Emit("blockUser", map[string]string{"idBlock": "x", "userId": "u1"}))

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"blockUser","data":{"idBlock":"x","userId":"u1"}}`, string(data))

	m.Disconnect()
}

func TestServerDropClearsHandleWithoutRetry(t *testing.T) {
	fs := newFakeServer(t)
	m := newTestManager(fs.url())
	rec := newHandleRecorder(m)

	m.Connect(context.Background(), "u1")
	require.NotNil(t, rec.next(t))
	ws := fs.next(t)
	ws.Close()

	assert.Nil(t, rec.next(t))
	assert.Nil(t, m.Handle())
	assert.Equal(t, "u1", m.Identity())
	rec.none(t)
}

func TestDialFailureLeavesNoHandle(t *testing.T) {
	m := newTestManager("ws://127.0.0.1:1/ws")
	rec := newHandleRecorder(m)

	m.Connect(context.Background(), "u1")
	rec.none(t)
	assert.Nil(t, m.Handle())
}

// handleLog keeps every handle one watcher saw, in order.
type handleLog struct {
	mu   sync.Mutex
	seen []*Conn
}

func (l *handleLog) add(c *Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, c)
}

func (l *handleLog) all() []*Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Conn(nil), l.seen...)
}

func TestDisconnectInsideWatcherEndsWithNil(t *testing.T) {
	fs := newFakeServer(t)
	m := newTestManager(fs.url())

	var first, second handleLog
	m.Watch(func(c *Conn) {
		first.add(c)
		if c != nil {
			m.Disconnect()
			time.Sleep(50 * time.Millisecond)
		}
	})
	m.Watch(second.add)

	m.Connect(context.Background(), "u1")
	fs.next(t)

	require.Eventually(t, func() bool {
		return len(first.all()) == 2 && len(second.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	seen := first.all()
	assert.NotNil(t, seen[0])
	assert.Nil(t, seen[1])
	assert.Equal(t, []*Conn{nil}, second.all(), "a torn down handle is never handed out")
	assert.Nil(t, m.Handle())
}

func TestDisconnectDuringSlowWatcherEndsWithNil(t *testing.T) {
	fs := newFakeServer(t)
	m := newTestManager(fs.url())

	entered := make(chan struct{})
	release := make(chan struct{})
	var first, second handleLog
	m.Watch(func(c *Conn) {
		first.add(c)
		if c != nil {
			close(entered)
			<-release
		}
	})
	m.Watch(second.add)

	m.Connect(context.Background(), "u1")
	fs.next(t)
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never saw the handle")
	}

	returned := make(chan struct{})
	go func() {
		m.Disconnect()
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect blocked on a running watcher")
	}
	assert.Nil(t, m.Handle())
	close(release)

	require.Eventually(t, func() bool {
		return len(first.all()) == 2 && len(second.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Nil(t, first.all()[1])
	assert.Equal(t, []*Conn{nil}, second.all())
}

func TestWatchAfterConnectSeesLiveHandle(t *testing.T) {
	fs := newFakeServer(t)
	m := newTestManager(fs.url())
	rec := newHandleRecorder(m)

	m.Connect(context.Background(), "u1")
	c := rec.next(t)
	fs.next(t)

	var late handleLog
	m.Watch(late.add)
	require.Eventually(t, func() bool { return len(late.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Same(t, c, late.all()[0])

	m.Disconnect()
	assert.Nil(t, rec.next(t))
	require.Eventually(t, func() bool { return len(late.all()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Nil(t, late.all()[1])
}

func TestBusUnsubscribe(t *testing.T) {
	b := NewBus()
	var calls []string
	unsubA := b.Subscribe("e", func(json.RawMessage) { calls = append(calls, "a") })
	b.Subscribe("e", func(json.RawMessage) { calls = append(calls, "b") })

	assert.Equal(t, 2, b.Dispatch("e", nil))
	unsubA()
	unsubA()
	assert.Equal(t, 1, b.Dispatch("e", nil))
	assert.Equal(t, []string{"a", "b", "b"}, calls)
	assert.Equal(t, 0, b.Dispatch("other", nil))

	b.Reset()
	assert.Equal(t, 0, b.Count("e"))
}
