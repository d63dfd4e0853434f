// Package call implements the video call signaling state machine that runs
// over the chat connection.
package call

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/raphaelgruber/chatsync-go/internal/metrics"
	"github.com/raphaelgruber/chatsync-go/internal/models"
	"github.com/raphaelgruber/chatsync-go/internal/socket"
)

// Status is the coordinator state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusCalling Status = "calling"
	StatusRinging Status = "ringing"
	StatusInCall  Status = "in_call"
)

// Role is the local side of the current call.
type Role string

const (
	RoleNone   Role = ""
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
)

var (
	ErrPeerOffline    = errors.New("peer is not online")
	ErrBusy           = errors.New("a call is already in progress")
	ErrNoIncomingCall = errors.New("no incoming call to answer")
	ErrNoIdentity     = errors.New("no local user")
)

// Conn is the part of a connection handle the coordinator uses.
type Conn interface {
	socket.Subscriber
	socket.Emitter
}

// Presence reports whether a user is online.
type Presence interface {
	IsOnline(id string) bool
}

// Identity supplies the local user.
type Identity interface {
	LocalUser() *models.User
}

// State is a snapshot of the coordinator.
type State struct {
	Status Status
	Role   Role
	CallID string
	Remote *models.User
	// Duration is frozen when a call ends and reset when the next starts.
	Duration        time.Duration
	HasLocalStream  bool
	HasRemoteStream bool
}

// Options configures a Coordinator.
type Options struct {
	Presence Presence
	Identity Identity
	Peers    PeerFactory

	// Media may be nil, in which case calls carry no local stream.
	Media MediaSource

	// NewTicker defaults to NewTimeTicker.
	NewTicker func(time.Duration) Ticker

	// Notice receives user-facing messages such as an offline callee.
	Notice func(string)

	// OnRemoteStream is called when the remote media arrives.
	OnRemoteStream func(Stream)

	Metrics *metrics.Collector
	Logger  *slog.Logger
}

type session struct {
	id     string
	role   Role
	remote models.User
	offer  json.RawMessage
	peer   Peer

	// answer holds a callAccepted signal that arrived before peer existed.
	answer json.RawMessage

	startedAt time.Time
	stopTick  chan struct{}
	remoteOK  bool
}

// Coordinator owns at most one call session.
type Coordinator struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	conn     Conn
	unsubs   []func()
	status   Status
	sess     *session
	duration time.Duration
	stream   Stream

	nextListener int
	listeners    []listener
}

type listener struct {
	id int
	fn func(State)
}

// New creates an idle coordinator.
func New(opts Options) *Coordinator {
	if opts.Presence == nil || opts.Identity == nil || opts.Peers == nil {
		panic("call: presence, identity and peer factory are required")
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewTimeTicker
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Coordinator{opts: opts, logger: opts.Logger, status: StatusIdle}
}

// Attach binds the coordinator to a live connection.
func (c *Coordinator) Attach(conn Conn) {
	c.Detach()

	unsubs := []func(){
		conn.Subscribe(models.EventCallUser, c.onIncomingCall),
		conn.Subscribe(models.EventCallAccepted, c.onCallAccepted),
		conn.Subscribe(models.EventCallEnded, c.onCallEnded),
	}

	c.mu.Lock()
	c.conn = conn
	c.unsubs = unsubs
	c.mu.Unlock()
}

// Detach drops the connection, ending any call without signaling.
func (c *Coordinator) Detach() {
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.conn = nil
	peer, ended := c.endLocked()
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	c.destroy(peer)
	if closer, ok := stream.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			c.logger.Debug("release local stream", "error", err)
		}
	}
	if ended {
		c.notify()
	}
}

// Listen registers fn to receive every state change.
func (c *Coordinator) Listen(fn func(State)) (unlisten func()) {
	c.mu.Lock()
	c.nextListener++
	id := c.nextListener
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, l := range c.listeners {
				if l.id == id {
					c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// State returns the current snapshot.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Coordinator) stateLocked() State {
	st := State{
		Status:         c.status,
		Duration:       c.duration,
		HasLocalStream: c.stream != nil,
	}
	if c.sess != nil {
		remote := c.sess.remote
		st.Role = c.sess.role
		st.CallID = c.sess.id
		st.Remote = &remote
		st.HasRemoteStream = c.sess.remoteOK
	}
	return st
}

func (c *Coordinator) notify() {
	c.mu.Lock()
	st := c.stateLocked()
	fns := make([]func(State), len(c.listeners))
	for i, l := range c.listeners {
		fns[i] = l.fn
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

// CallUser places a call to contact. It fails with ErrPeerOffline when the
// contact is not in the presence set and with ErrBusy outside idle.
func (c *Coordinator) CallUser(ctx context.Context, contact models.User) error {
	if err := c.precheckCall(contact); err != nil {
		if errors.Is(err, ErrPeerOffline) {
			c.noticef("%s is not online. Please call again later.", contact.DisplayName())
		}
		return err
	}

	stream := c.localStream(ctx)

	c.mu.Lock()
	if c.status != StatusIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.conn == nil {
		c.mu.Unlock()
		return socket.ErrNotConnected
	}
	sess := &session{id: uuid.NewString(), role: RoleCaller, remote: contact}
	c.sess = sess
	c.status = StatusCalling
	c.duration = 0
	c.mu.Unlock()

	c.logger.Info("calling", "call", sess.id, "to", contact.ID)
	c.notify()

	_, err := c.startPeer(sess, PeerConfig{Initiator: true, Stream: stream})
	return err
}

func (c *Coordinator) precheckCall(contact models.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusIdle {
		return ErrBusy
	}
	if c.conn == nil {
		return socket.ErrNotConnected
	}
	if local := c.opts.Identity.LocalUser(); local == nil || local.ID == "" {
		return ErrNoIdentity
	}
	if contact.ID == "" || !c.opts.Presence.IsOnline(contact.ID) {
		return ErrPeerOffline
	}
	return nil
}

// AnswerCall accepts the ringing call.
func (c *Coordinator) AnswerCall(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusRinging || c.sess == nil {
		c.mu.Unlock()
		return ErrNoIncomingCall
	}
	id := c.sess.id
	c.mu.Unlock()

	stream := c.localStream(ctx)

	c.mu.Lock()
	sess := c.sess
	if c.status != StatusRinging || sess == nil || sess.id != id {
		c.mu.Unlock()
		return ErrNoIncomingCall
	}
	if c.conn == nil {
		c.mu.Unlock()
		return socket.ErrNotConnected
	}
	c.enterInCallLocked()
	c.mu.Unlock()

	c.logger.Info("call answered", "call", id, "from", sess.remote.ID)
	c.notify()

	peer, err := c.startPeer(sess, PeerConfig{Initiator: false, Stream: stream})
	if err != nil || peer == nil {
		return err
	}
	if err := peer.Signal(sess.offer); err != nil {
		c.logger.Warn("apply offer failed", "call", id, "error", err)
	}
	return nil
}

// startPeer creates the peer for sess outside the lock. The session is
// ended when creation fails. A nil peer is returned when the session ended
// meanwhile.
func (c *Coordinator) startPeer(sess *session, cfg PeerConfig) (Peer, error) {
	id := sess.id
	cfg.OnSignal = func(sig json.RawMessage) { c.onLocalSignal(id, sig) }
	cfg.OnStream = func(s Stream) { c.onRemoteStream(id, s) }

	peer, err := c.opts.Peers(cfg)

	c.mu.Lock()
	current := c.sess == sess
	if err != nil {
		var stale Peer
		if current {
			stale, _ = c.endLocked()
		}
		c.mu.Unlock()
		c.destroy(stale)
		c.notify()
		return nil, fmt.Errorf("create peer: %w", err)
	}
	if !current {
		c.mu.Unlock()
		c.destroy(peer)
		return nil, nil
	}
	sess.peer = peer
	answer := sess.answer
	sess.answer = nil
	c.mu.Unlock()

	if len(answer) > 0 {
		if err := peer.Signal(answer); err != nil {
			c.logger.Warn("apply answer failed", "call", id, "error", err)
		}
	}
	return peer, nil
}

// LeaveCall ends the current call from the local side: it cancels an
// outgoing call, declines a ringing one or hangs up. The remote side is told
// and a call record is sent. It is a no-op when idle.
func (c *Coordinator) LeaveCall() error {
	c.mu.Lock()
	if c.sess == nil {
		c.mu.Unlock()
		return nil
	}
	sess := c.sess
	conn := c.conn
	duration := c.duration
	local := c.opts.Identity.LocalUser()
	peer, _ := c.endLocked()
	c.mu.Unlock()

	c.destroy(peer)

	var err error
	if conn == nil {
		err = socket.ErrNotConnected
	} else {
		err = errors.Join(
			conn.Emit(models.EventCallEnded, models.CallEndedPayload{To: sess.remote}),
			conn.Emit(models.EventSendMessage, callRecord(sess, local, duration)),
		)
	}
	if err != nil {
		c.logger.Warn("signal hangup failed", "call", sess.id, "error", err)
	}

	c.logger.Info("call left", "call", sess.id, "role", sess.role, "duration", models.FormatCallDuration(duration))
	c.notify()
	return err
}

// callRecord builds the call message. The caller is always the sender.
func callRecord(sess *session, local *models.User, d time.Duration) models.SendMessagePayload {
	localID := ""
	if local != nil {
		localID = local.ID
	}
	msg := models.OutboundMessage{
		MessageType: models.MessageCall,
		CallTime:    models.FormatCallDuration(d),
	}
	if sess.role == RoleCallee {
		msg.Sender, msg.Recipient = sess.remote.ID, localID
	} else {
		msg.Sender, msg.Recipient = localID, sess.remote.ID
	}
	return models.SendMessagePayload{Message: msg, Contact: sess.remote}
}

func (c *Coordinator) onIncomingCall(data json.RawMessage) {
	var p models.CallUserPayload
	if err := json.Unmarshal(data, &p); err != nil || p.From.ID == "" || len(p.Offer()) == 0 {
		c.logger.Debug("dropping malformed call offer", "error", err)
		return
	}

	c.mu.Lock()
	if local := c.opts.Identity.LocalUser(); local != nil && p.UserToCall.ID != "" && p.UserToCall.ID != local.ID {
		c.mu.Unlock()
		c.logger.Debug("ignoring call for another user", "to", p.UserToCall.ID)
		return
	}
	if c.status != StatusIdle {
		c.mu.Unlock()
		c.logger.Info("ignoring incoming call while busy", "from", p.From.ID, "status", c.status)
		return
	}
	sess := &session{id: uuid.NewString(), role: RoleCallee, remote: p.From, offer: p.Offer()}
	c.sess = sess
	c.status = StatusRinging
	c.duration = 0
	c.mu.Unlock()

	c.logger.Info("incoming call", "call", sess.id, "from", p.From.ID)
	c.notify()
}

func (c *Coordinator) onCallAccepted(data json.RawMessage) {
	signal := unwrapSignal(data)
	if len(signal) == 0 {
		c.logger.Debug("dropping empty call answer")
		return
	}

	c.mu.Lock()
	if c.status != StatusCalling || c.sess == nil {
		status := c.status
		c.mu.Unlock()
		c.logger.Debug("ignoring call answer", "status", status)
		return
	}
	sess := c.sess
	peer := sess.peer
	if peer == nil {
		// The peer is still being created; startPeer applies it.
		sess.answer = signal
	}
	c.enterInCallLocked()
	c.mu.Unlock()

	c.logger.Info("call accepted", "call", sess.id)
	c.notify()

	if peer == nil {
		return
	}
	if err := peer.Signal(signal); err != nil {
		c.logger.Warn("apply answer failed", "call", sess.id, "error", err)
	}
}

// unwrapSignal accepts the bare signal or {"signal": ...}.
func unwrapSignal(data json.RawMessage) json.RawMessage {
	var wrapped struct {
		Signal json.RawMessage `json:"signal"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Signal) > 0 && string(wrapped.Signal) != "null" {
		return wrapped.Signal
	}
	if s := string(data); s == "" || s == "null" {
		return nil
	}
	return data
}

// onCallEnded tears the call down without signaling back.
func (c *Coordinator) onCallEnded(json.RawMessage) {
	c.mu.Lock()
	id := ""
	if c.sess != nil {
		id = c.sess.id
	}
	peer, ended := c.endLocked()
	c.mu.Unlock()

	c.destroy(peer)
	if ended {
		c.logger.Info("call ended by peer", "call", id)
		c.notify()
	}
}

func (c *Coordinator) onLocalSignal(id string, sig json.RawMessage) {
	c.mu.Lock()
	sess, conn := c.sess, c.conn
	if sess == nil || sess.id != id || conn == nil {
		c.mu.Unlock()
		return
	}
	status := c.status
	local := c.opts.Identity.LocalUser()
	c.mu.Unlock()

	var err error
	switch {
	case sess.role == RoleCaller && status == StatusCalling:
		from := models.User{}
		if local != nil {
			from = *local
		}
		err = conn.Emit(models.EventCallUser, models.CallUserPayload{
			SignalData: sig,
			From:       from,
			UserToCall: sess.remote,
		})
	case sess.role == RoleCallee && status == StatusInCall:
		err = conn.Emit(models.EventAnswerCall, models.AnswerCallPayload{Signal: sig, To: sess.remote})
	default:
		c.logger.Debug("dropping local signal", "call", id, "status", status)
		return
	}
	if err != nil {
		c.logger.Warn("send signal failed", "call", id, "error", err)
	}
}

func (c *Coordinator) onRemoteStream(id string, s Stream) {
	c.mu.Lock()
	if c.sess == nil || c.sess.id != id {
		c.mu.Unlock()
		return
	}
	c.sess.remoteOK = true
	c.mu.Unlock()

	if c.opts.OnRemoteStream != nil {
		c.opts.OnRemoteStream(s)
	}
	c.notify()
}

// localStream acquires the capture stream once. Failure leaves it unset.
func (c *Coordinator) localStream(ctx context.Context) Stream {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream != nil || c.opts.Media == nil {
		return stream
	}

	s, err := c.opts.Media.Acquire(ctx)
	if err != nil {
		c.logger.Error("failed to get media devices", "error", err)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		c.stream = s
	}
	return c.stream
}

func (c *Coordinator) enterInCallLocked() {
	c.status = StatusInCall
	c.duration = 0
	c.sess.startedAt = time.Now()
	stop := make(chan struct{})
	c.sess.stopTick = stop

	ticker := c.opts.NewTicker(time.Second)
	id := c.sess.id
	go c.tick(id, ticker, stop)
}

func (c *Coordinator) tick(id string, ticker Ticker, stop <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			c.mu.Lock()
			if c.sess == nil || c.sess.id != id || c.status != StatusInCall {
				c.mu.Unlock()
				return
			}
			c.duration += time.Second
			c.mu.Unlock()
			c.notify()
		}
	}
}

// endLocked returns the coordinator to idle and hands back the peer to
// destroy outside the lock. It reports whether a session existed.
func (c *Coordinator) endLocked() (Peer, bool) {
	sess := c.sess
	if sess == nil {
		return nil, false
	}
	if sess.stopTick != nil {
		close(sess.stopTick)
		if c.status == StatusInCall {
			c.opts.Metrics.RecordTiming(metrics.OpCall, time.Since(sess.startedAt), nil)
		}
	}
	c.sess = nil
	c.status = StatusIdle
	return sess.peer, true
}

func (c *Coordinator) destroy(p Peer) {
	if p == nil {
		return
	}
	if err := p.Destroy(); err != nil {
		c.logger.Debug("destroy peer", "error", err)
	}
}

func (c *Coordinator) noticef(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.logger.Info("call notice", "message", msg)
	if c.opts.Notice != nil {
		c.opts.Notice(msg)
	}
}
