// Package router applies inbound real-time events to the conversation store
// and the presence tracker.
package router

import (
	"bytes"
	"log/slog"
	"sync"

	"github.com/goccy/go-json"

	"github.com/raphaelgruber/chatsync-go/internal/metrics"
	"github.com/raphaelgruber/chatsync-go/internal/models"
	"github.com/raphaelgruber/chatsync-go/internal/presence"
	"github.com/raphaelgruber/chatsync-go/internal/socket"
	"github.com/raphaelgruber/chatsync-go/internal/store"
)

// outcome of handling one event.
type outcome int

const (
	applied outcome = iota
	ignored
	dropped
)

// Router owns one set of subscriptions on the current connection.
type Router struct {
	store    *store.Store
	presence *presence.Tracker
	metrics  *metrics.Collector
	logger   *slog.Logger

	mu     sync.Mutex
	unsubs []func()
}

// New creates a router. metrics may be nil.
func New(st *store.Store, pr *presence.Tracker, m *metrics.Collector, logger *slog.Logger) *Router {
	if st == nil || pr == nil {
		panic("router: store and presence tracker are required")
	}
	return &Router{store: st, presence: pr, metrics: m, logger: logger}
}

// Attach subscribes to sub, replacing any previous subscriptions.
func (r *Router) Attach(sub socket.Subscriber) {
	r.Detach()

	handlers := map[string]func(json.RawMessage) outcome{
		models.EventReceiveMessage:        r.onDirectMessage,
		models.EventReceiveChannelMessage: r.onChannelMessage,
		models.EventOnlineUsers:           r.onOnlineUsers,
		models.EventBlockedUser:           r.onBlockedUser,
		models.EventChannelRenamed:        r.onChannelRenamed,
		models.EventChannelDeleted:        r.onChannelDeleted,
		models.EventChannelChangedImage:   r.onChannelChangedImage,
		models.EventAddDirectContact:      r.onAddDirectContact,
		models.EventCreateChannel:         r.onChannelCreated,
	}

	unsubs := make([]func(), 0, len(handlers))
	for event, h := range handlers {
		unsubs = append(unsubs, sub.Subscribe(event, r.wrap(event, h)))
	}

	r.mu.Lock()
	r.unsubs = unsubs
	r.mu.Unlock()
}

// Detach removes every subscription made by Attach.
func (r *Router) Detach() {
	r.mu.Lock()
	unsubs := r.unsubs
	r.unsubs = nil
	r.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

func (r *Router) wrap(event string, h func(json.RawMessage) outcome) socket.Handler {
	return func(data json.RawMessage) {
		r.metrics.EventReceived(event)
		switch h(data) {
		case applied:
			r.metrics.EventApplied(event)
		case ignored:
			r.metrics.EventIgnored(event)
		case dropped:
			r.metrics.EventDropped(event)
			r.logger.Debug("dropping malformed event", "event", event, "bytes", len(data))
		}
	}
}

func decode[T any](data json.RawMessage) (T, bool) {
	var v T
	if len(bytes.TrimSpace(data)) == 0 {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false
	}
	return v, true
}

func (r *Router) onDirectMessage(data json.RawMessage) outcome {
	msg, ok := decode[models.DirectMessage](data)
	if !ok || msg.Sender.ID == "" || msg.Recipient.ID == "" || msg.MessageType == "" {
		return dropped
	}
	if r.store.AppendIncomingMessage(&msg) {
		return applied
	}
	return ignored
}

func (r *Router) onChannelMessage(data json.RawMessage) outcome {
	msg, ok := decode[models.ChannelMessage](data)
	if !ok || msg.ChannelID == "" || msg.Sender.ID == "" || msg.MessageType == "" {
		return dropped
	}
	if r.store.AppendIncomingMessage(&msg) {
		return applied
	}
	return ignored
}

func (r *Router) onOnlineUsers(data json.RawMessage) outcome {
	ids, ok := decode[[]string](data)
	if !ok {
		return dropped
	}
	r.presence.Replace(ids)
	return applied
}

func (r *Router) onBlockedUser(data json.RawMessage) outcome {
	u, ok := decode[models.User](data)
	if !ok || u.ID == "" {
		return dropped
	}
	local := r.store.LocalUser()
	if local == nil || local.ID != u.ID {
		return ignored
	}
	r.store.SetLocalUser(&u)
	return applied
}

func (r *Router) onChannelRenamed(data json.RawMessage) outcome {
	p, ok := decode[models.ChannelRenamedPayload](data)
	if !ok || p.ChannelID == "" || p.Title == "" {
		return dropped
	}
	r.store.RenameChannel(p.ChannelID, p.Title)
	return applied
}

// onChannelDeleted accepts the bare channel id or {"channelId": id}.
func (r *Router) onChannelDeleted(data json.RawMessage) outcome {
	id, ok := decode[string](data)
	if !ok {
		p, isObj := decode[models.ChannelIDPayload](data)
		id, ok = p.ChannelID, isObj
	}
	if !ok || id == "" {
		return dropped
	}
	r.store.RemoveChannel(id)
	return applied
}

func (r *Router) onChannelChangedImage(data json.RawMessage) outcome {
	p, ok := decode[models.ChannelImagePayload](data)
	if !ok || p.ChannelID == "" {
		return dropped
	}
	r.store.UpdateChannelImage(p.ChannelID, p.URL)
	return applied
}

func (r *Router) onAddDirectContact(data json.RawMessage) outcome {
	c, ok := decode[models.Contact](data)
	if !ok || c.ID == "" || c.IDUser == "" {
		return dropped
	}
	if c.ID == c.IDUser {
		return ignored
	}
	if r.store.UpsertContact(&c) {
		return applied
	}
	return ignored
}

// onChannelCreated handles the server relaying a new or changed channel to
// its members.
func (r *Router) onChannelCreated(data json.RawMessage) outcome {
	p, ok := decode[models.CreateChannelPayload](data)
	if !ok || p.Channel.ID == "" {
		return dropped
	}
	r.store.UpsertChannel(&p.Channel)
	return applied
}
