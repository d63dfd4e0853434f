// Package session composes the realtime chat core for one signed-in user:
// the connection manager, the event router, the call coordinator, history
// loading and the assistant.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/chatsync-go/internal/assistant"
	"github.com/raphaelgruber/chatsync-go/internal/call"
	"github.com/raphaelgruber/chatsync-go/internal/client"
	"github.com/raphaelgruber/chatsync-go/internal/history"
	"github.com/raphaelgruber/chatsync-go/internal/metrics"
	"github.com/raphaelgruber/chatsync-go/internal/models"
	"github.com/raphaelgruber/chatsync-go/internal/presence"
	"github.com/raphaelgruber/chatsync-go/internal/router"
	"github.com/raphaelgruber/chatsync-go/internal/socket"
	"github.com/raphaelgruber/chatsync-go/internal/store"
)

var (
	// ErrNotConnected is returned by outbound operations without a live
	// connection.
	ErrNotConnected = socket.ErrNotConnected

	// ErrNoConversation is returned when an operation needs an open
	// conversation of a particular kind.
	ErrNoConversation = errors.New("no matching conversation open")

	// ErrNoIdentity is returned before SetIdentity.
	ErrNoIdentity = errors.New("no local user")
)

// Options configures a Session.
type Options struct {
	// SocketURL is the websocket endpoint.
	SocketURL string

	// Client is the REST client. Its cookie jar authenticates the websocket.
	Client *client.Client

	Peers call.PeerFactory
	Media call.MediaSource

	Completer assistant.Completer
	Imager    assistant.Imager

	// Notice receives user-facing messages.
	Notice func(string)

	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration

	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Session is the per-identity composition root.
type Session struct {
	client   *client.Client
	store    *store.Store
	presence *presence.Tracker
	metrics  *metrics.Collector
	manager  *socket.Manager
	router   *router.Router
	calls    *call.Coordinator
	history  *history.Loader
	ai       *assistant.Service
	logger   *slog.Logger

	mu      sync.Mutex
	unwatch func()
}

// New wires a disconnected session.
func New(opts Options) (*Session, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("session: REST client required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}
	if opts.Peers == nil {
		opts.Peers = call.NewPionFactory(nil, opts.Logger)
	}

	st := store.New()
	pr := presence.NewTracker()

	sockOpts := socket.Options{
		URL:              opts.SocketURL,
		Jar:              opts.Client.Jar(),
		HandshakeTimeout: opts.HandshakeTimeout,
	}

	s := &Session{
		client:   opts.Client,
		store:    st,
		presence: pr,
		metrics:  opts.Metrics,
		manager:  socket.NewManager(sockOpts, opts.Logger.With("component", "socket")),
		router:   router.New(st, pr, opts.Metrics, opts.Logger.With("component", "router")),
		history:  history.New(opts.Client, st, opts.Metrics, opts.Logger.With("component", "history")),
		logger:   opts.Logger,
	}
	s.calls = call.New(call.Options{
		Presence: pr,
		Identity: st,
		Peers:    opts.Peers,
		Media:    opts.Media,
		Notice:   opts.Notice,
		Metrics:  opts.Metrics,
		Logger:   opts.Logger.With("component", "call"),
	})
	s.ai = assistant.New(assistant.Options{
		Store:     st,
		Persister: opts.Client,
		Completer: opts.Completer,
		Imager:    opts.Imager,
		Metrics:   opts.Metrics,
		Logger:    opts.Logger.With("component", "assistant"),
	})

	s.unwatch = s.manager.Watch(s.onHandle)
	return s, nil
}

// onHandle runs before the new connection's read pump starts, so no event
// can arrive ahead of the subscriptions.
func (s *Session) onHandle(conn *socket.Conn) {
	if conn == nil {
		s.router.Detach()
		s.calls.Detach()
		s.presence.Replace(nil)
		return
	}
	s.router.Attach(conn)
	s.calls.Attach(conn)
}

// Store returns the conversation store.
func (s *Session) Store() *store.Store { return s.store }

// Presence returns the online tracker.
func (s *Session) Presence() *presence.Tracker { return s.presence }

// Calls returns the call coordinator.
func (s *Session) Calls() *call.Coordinator { return s.calls }

// Assistant returns the AI session service.
func (s *Session) Assistant() *assistant.Service { return s.ai }

// History returns the history loader.
func (s *Session) History() *history.Loader { return s.history }

// Metrics returns the metrics collector.
func (s *Session) Metrics() *metrics.Collector { return s.metrics }

// Connected reports whether a live connection exists.
func (s *Session) Connected() bool { return s.manager.Handle() != nil }

// Watch observes connection changes; see socket.Manager.Watch.
func (s *Session) Watch(fn func(*socket.Conn)) (unwatch func()) {
	return s.manager.Watch(fn)
}

// SetIdentity signs user in: it is stored as the local user and the
// connection is (re)established for its id. Nil signs out and tears the
// connection down. Setting the same identity again keeps the connection.
func (s *Session) SetIdentity(ctx context.Context, user *models.User) {
	if user == nil || user.ID == "" {
		s.manager.Disconnect()
		s.store.CloseConversation()
		s.store.SetLocalUser(nil)
		return
	}
	if prev := s.store.LocalUser(); prev != nil && prev.ID != user.ID {
		s.store.CloseConversation()
	}
	s.store.SetLocalUser(user)
	s.manager.Connect(ctx, user.ID)
}

// Close signs out and stops observing the manager.
func (s *Session) Close() {
	s.SetIdentity(context.Background(), nil)
	s.mu.Lock()
	unwatch := s.unwatch
	s.unwatch = nil
	s.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
}

// LoadRoster fetches contacts, channels and AI sessions.
func (s *Session) LoadRoster(ctx context.Context) error {
	return s.history.LoadRoster(ctx)
}

// Open makes target the active conversation and loads its history in the
// background. The returned channel yields the load result once.
func (s *Session) Open(ctx context.Context, target models.Target) <-chan error {
	s.store.SelectTarget(target)
	done := make(chan error, 1)
	if target == nil {
		done <- nil
		return done
	}
	go func() {
		_, err := s.history.Load(ctx, target)
		done <- err
	}()
	return done
}

func (s *Session) conn() (*socket.Conn, error) {
	conn := s.manager.Handle()
	if conn == nil {
		return nil, ErrNotConnected
	}
	return conn, nil
}

func (s *Session) localUser() (*models.User, error) {
	u := s.store.LocalUser()
	if u == nil || u.ID == "" {
		return nil, ErrNoIdentity
	}
	return u, nil
}

// SendText sends text to the open contact or channel.
func (s *Session) SendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.send(models.OutboundMessage{MessageType: models.MessageText, Content: text})
}

// SendFile uploads r and sends it as a file message to the open contact or
// channel. Upload progress is mirrored into the store.
func (s *Session) SendFile(ctx context.Context, filename string, r io.Reader, progress client.ProgressFunc) error {
	if _, err := s.target(); err != nil {
		return err
	}
	if _, err := s.conn(); err != nil {
		return err
	}

	s.store.SetUploadProgress(0)
	path, err := s.client.UploadFile(ctx, filename, r, func(p int) {
		s.store.SetUploadProgress(p)
		if progress != nil {
			progress(p)
		}
	})
	s.store.SetUploadProgress(-1)
	if err != nil {
		return err
	}
	return s.send(models.OutboundMessage{MessageType: models.MessageFile, FileURL: path})
}

// Download fetches a message attachment into w, mirroring progress into the
// store.
func (s *Session) Download(ctx context.Context, fileURL string, w io.Writer) (int64, error) {
	s.store.SetDownloadProgress(0)
	defer s.store.SetDownloadProgress(-1)
	return s.client.Download(ctx, fileURL, w, s.store.SetDownloadProgress)
}

func (s *Session) target() (models.Target, error) {
	t := s.store.Active()
	if t == nil || t.Kind() == models.KindAI {
		return nil, ErrNoConversation
	}
	return t, nil
}

// send addresses msg to the open conversation and emits it.
func (s *Session) send(msg models.OutboundMessage) error {
	t, err := s.target()
	if err != nil {
		return err
	}
	me, err := s.localUser()
	if err != nil {
		return err
	}
	conn, err := s.conn()
	if err != nil {
		return err
	}

	msg.Sender = me.ID
	if t.Kind() == models.KindChannel {
		msg.ChannelID = t.TargetID()
		return conn.Emit(models.EventSendChannelMessage, models.SendChannelMessagePayload{Message: msg})
	}
	msg.Recipient = t.TargetID()
	return conn.Emit(models.EventSendMessage, models.SendMessagePayload{Message: msg, Contact: *me})
}
