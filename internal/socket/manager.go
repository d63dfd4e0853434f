package socket

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Options configures how the Manager dials.
type Options struct {
	// URL of the event-stream endpoint, ws:// or wss://.
	URL string

	// Jar supplies the session cookie on the handshake.
	Jar http.CookieJar

	HandshakeTimeout time.Duration
	Header           http.Header
}

type watcher struct {
	id int
	fn func(*Conn)
}

// notice is one pending handle change. A nil conn reports a teardown.
type notice struct {
	conn *Conn
	fns  []func(*Conn)
	done chan struct{}
}

// Manager owns at most one live connection, tied to the current identity.
// Observers registered with Watch are told about every new handle and about
// every teardown (with nil), one notice at a time and in the order the
// changes happened. No reconnect is attempted after a drop.
type Manager struct {
	opts   Options
	dialer *websocket.Dialer
	logger *slog.Logger

	mu       sync.Mutex
	identity string
	conn     *Conn
	gen      uint64
	cancel   context.CancelFunc
	nextID   int
	watchers []watcher

	notices    []notice
	delivering bool
}

// NewManager creates a disconnected manager.
func NewManager(opts Options, logger *slog.Logger) *Manager {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	return &Manager{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
			Jar:              opts.Jar,
		},
		logger: logger,
	}
}

// Watch registers fn to observe handle changes. If a connection is already
// live, fn is told about it before Watch returns, unless another notice is
// being delivered, in which case it follows that one.
func (m *Manager) Watch(fn func(*Conn)) (unwatch func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.watchers = append(m.watchers, watcher{id: id, fn: fn})
	if m.conn != nil {
		m.queueLocked(m.conn, []func(*Conn){fn})
	}
	m.mu.Unlock()

	m.deliver()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, w := range m.watchers {
				if w.id == id {
					m.watchers = append(m.watchers[:i:i], m.watchers[i+1:]...)
					break
				}
			}
		})
	}
}

// Handle returns the live connection, or nil.
func (m *Manager) Handle() *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// Identity returns the identity the manager is tracking.
func (m *Manager) Identity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Connect establishes a connection for identity in the background. An empty
// identity disconnects. Connecting again with the same identity while a
// connection is live or pending is a no-op. A different identity tears the
// old connection down before dialing.
func (m *Manager) Connect(ctx context.Context, identity string) {
	m.mu.Lock()
	if identity != "" && identity == m.identity && (m.conn != nil || m.cancel != nil) {
		m.mu.Unlock()
		return
	}

	old := m.teardownLocked()
	m.identity = identity
	if identity == "" {
		m.mu.Unlock()
		m.finishTeardown(old)
		return
	}

	dialCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	gen := m.gen
	m.mu.Unlock()

	m.finishTeardown(old)
	go m.dial(dialCtx, gen, identity)
}

// Disconnect tears down any connection and forgets the identity. Called from
// inside a watcher, it returns at once and the nil notice follows the one
// being delivered.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	old := m.teardownLocked()
	m.identity = ""
	m.mu.Unlock()

	m.finishTeardown(old)
}

func (m *Manager) dial(ctx context.Context, gen uint64, identity string) {
	target, err := m.endpoint(identity)
	if err != nil {
		m.logger.Error("invalid socket url", "url", m.opts.URL, "error", err)
		m.dialFailed(gen)
		return
	}

	start := time.Now()
	ws, resp, err := m.dialer.DialContext(ctx, target, m.opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("socket connect failed", "user", identity, "error", err)
		}
		m.dialFailed(gen)
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		ws.Close()
		return
	}
	conn := newConn(ws, identity, m.logger)
	m.conn = conn
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	delivered := m.queueLocked(conn, m.snapshotWatchersLocked())
	m.mu.Unlock()

	m.logger.Info("socket connected", "user", identity, "duration", time.Since(start))

	// Observers subscribe before the read pump starts so no early event is lost.
	m.deliver()
	<-delivered

	go func() {
		<-conn.Done()
		m.connClosed(conn)
	}()
	conn.run()
}

func (m *Manager) dialFailed(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen == m.gen && m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// connClosed handles a drop the manager did not initiate.
func (m *Manager) connClosed(conn *Conn) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.queueLocked(nil, m.snapshotWatchersLocked())
	m.mu.Unlock()

	m.deliver()
}

// teardownLocked drops the live connection and queues its nil notice. The
// caller passes the result to finishTeardown after unlocking.
func (m *Manager) teardownLocked() *Conn {
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	old := m.conn
	m.conn = nil
	if old != nil {
		m.queueLocked(nil, m.snapshotWatchersLocked())
	}
	return old
}

func (m *Manager) finishTeardown(old *Conn) {
	if old == nil {
		return
	}
	m.deliver()
	if err := old.Close(); err != nil {
		m.logger.Debug("socket close", "user", old.Identity(), "error", err)
	}
	m.logger.Info("socket disconnected", "user", old.Identity())
}

func (m *Manager) queueLocked(conn *Conn, fns []func(*Conn)) <-chan struct{} {
	done := make(chan struct{})
	m.notices = append(m.notices, notice{conn: conn, fns: fns, done: done})
	return done
}

// deliver runs queued notices in order on the calling goroutine. If another
// goroutine is already delivering, it returns and that goroutine picks the
// new notices up. A handle that was replaced or torn down is no longer handed
// out; its nil notice is already queued behind it.
func (m *Manager) deliver() {
	m.mu.Lock()
	if m.delivering {
		m.mu.Unlock()
		return
	}
	m.delivering = true

	var finished []chan struct{}
	for len(m.notices) > 0 {
		n := m.notices[0]
		m.notices = m.notices[1:]
		for _, fn := range n.fns {
			if n.conn != nil && n.conn != m.conn {
				break
			}
			m.mu.Unlock()
			fn(n.conn)
			m.mu.Lock()
		}
		finished = append(finished, n.done)
	}
	m.notices = nil
	m.delivering = false
	m.mu.Unlock()

	for _, done := range finished {
		close(done)
	}
}

func (m *Manager) snapshotWatchersLocked() []func(*Conn) {
	fns := make([]func(*Conn), len(m.watchers))
	for i, w := range m.watchers {
		fns[i] = w.fn
	}
	return fns
}

func (m *Manager) endpoint(identity string) (string, error) {
	u, err := url.Parse(m.opts.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("userId", identity)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
