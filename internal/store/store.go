// Package store holds the in-memory conversation state of one session: the
// active conversation, its message list, and the contact, channel and AI
// session rosters. It is the single writer of that state.
package store

import (
	"sync"

	"github.com/raphaelgruber/chatsync-go/internal/models"
)

// Change identifies what part of the state a mutation touched.
type Change int

const (
	ChangeActive Change = iota
	ChangeMessages
	ChangeContacts
	ChangeChannels
	ChangeAiSessions
	ChangeLocalUser
	ChangeProgress
)

func (c Change) String() string {
	switch c {
	case ChangeActive:
		return "active"
	case ChangeMessages:
		return "messages"
	case ChangeContacts:
		return "contacts"
	case ChangeChannels:
		return "channels"
	case ChangeAiSessions:
		return "ai_sessions"
	case ChangeLocalUser:
		return "local_user"
	case ChangeProgress:
		return "progress"
	default:
		return "unknown"
	}
}

// Progress tracks file transfers in flight.
type Progress struct {
	Uploading       bool
	UploadPercent   int
	Downloading     bool
	DownloadPercent int
}

// State is a point-in-time copy of the store.
type State struct {
	LocalUser  *models.User
	Active     models.Target
	Messages   []models.Message
	Contacts   []*models.Contact
	Channels   []*models.Channel
	AiSessions []*models.AiSession
	Progress   Progress
}

// LoadToken ties a history fetch to the target that was active when it
// started.
type LoadToken struct {
	TargetID string
	Kind     models.TargetKind
	seq      uint64
}

type listener struct {
	id int
	fn func(Change)
}

// Store is safe for concurrent use. Listeners run after the lock is
// released, on the goroutine that made the change.
type Store struct {
	mu    sync.Mutex
	state State

	loadSeq uint64

	nextID    int
	listeners []listener
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// Listen registers fn for change notifications.
func (s *Store) Listen(fn func(Change)) (unlisten func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// update runs fn under the lock and notifies listeners of the changes it
// reports.
func (s *Store) update(fn func(st *State) []Change) {
	s.mu.Lock()
	changes := fn(&s.state)
	var fns []func(Change)
	if len(changes) > 0 {
		fns = make([]func(Change), len(s.listeners))
		for i, l := range s.listeners {
			fns[i] = l.fn
		}
	}
	s.mu.Unlock()

	for _, c := range changes {
		for _, f := range fns {
			f(c)
		}
	}
}

// Snapshot returns a deep copy of the state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Active:     cloneTarget(s.state.Active),
		Messages:   append([]models.Message(nil), s.state.Messages...),
		Contacts:   make([]*models.Contact, len(s.state.Contacts)),
		Channels:   make([]*models.Channel, len(s.state.Channels)),
		AiSessions: make([]*models.AiSession, len(s.state.AiSessions)),
		Progress:   s.state.Progress,
	}
	if s.state.LocalUser != nil {
		u := *s.state.LocalUser
		u.BlockedUsers = append([]string(nil), u.BlockedUsers...)
		st.LocalUser = &u
	}
	for i, c := range s.state.Contacts {
		st.Contacts[i] = c.Clone()
	}
	for i, c := range s.state.Channels {
		st.Channels[i] = c.Clone()
	}
	for i, a := range s.state.AiSessions {
		st.AiSessions[i] = a.Clone()
	}
	return st
}

// Active returns a copy of the active target, or nil.
func (s *Store) Active() models.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTarget(s.state.Active)
}

// Messages returns a copy of the active message list.
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.state.Messages...)
}

// SetLocalUser records the authenticated user. Nil clears it.
func (s *Store) SetLocalUser(u *models.User) {
	s.update(func(st *State) []Change {
		if u == nil {
			st.LocalUser = nil
		} else {
			cp := *u
			st.LocalUser = &cp
		}
		return []Change{ChangeLocalUser}
	})
}

// LocalUser returns a copy of the authenticated user, or nil.
func (s *Store) LocalUser() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.LocalUser == nil {
		return nil
	}
	u := *s.state.LocalUser
	return &u
}

func (s *Store) localID() string {
	if s.state.LocalUser == nil {
		return ""
	}
	return s.state.LocalUser.ID
}

// SelectTarget makes t the active conversation. The message list is cleared
// when the id changes. Nil closes the conversation.
func (s *Store) SelectTarget(t models.Target) {
	s.update(func(st *State) []Change {
		if t == nil {
			return closeConversation(st)
		}
		prev := st.Active
		st.Active = t.CloneTarget()
		if prev == nil || prev.TargetID() != t.TargetID() || prev.Kind() != t.Kind() {
			st.Messages = nil
			return []Change{ChangeActive, ChangeMessages}
		}
		return []Change{ChangeActive}
	})
}

// CloseConversation clears the active target and its messages.
func (s *Store) CloseConversation() {
	s.update(closeConversation)
}

func closeConversation(st *State) []Change {
	if st.Active == nil && len(st.Messages) == 0 {
		return nil
	}
	st.Active = nil
	st.Messages = nil
	return []Change{ChangeActive, ChangeMessages}
}

// ReplaceMessageList swaps the message list wholesale.
func (s *Store) ReplaceMessageList(list []models.Message) {
	s.update(func(st *State) []Change {
		st.Messages = append([]models.Message(nil), list...)
		return []Change{ChangeMessages}
	})
}

// AppendIncomingMessage appends m when it belongs to the active
// conversation and reports whether it did.
func (s *Store) AppendIncomingMessage(m models.Message) bool {
	appended := false
	s.update(func(st *State) []Change {
		if !belongsTo(st.Active, m) {
			return nil
		}
		st.Messages = append(st.Messages, m)
		appended = true
		return []Change{ChangeMessages}
	})
	return appended
}

func belongsTo(active models.Target, m models.Message) bool {
	if active == nil || m == nil {
		return false
	}
	switch msg := m.(type) {
	case *models.DirectMessage:
		return active.Kind() == models.KindContact && msg.Involves(active.TargetID())
	case *models.ChannelMessage:
		return active.Kind() == models.KindChannel && msg.ChannelID != "" && msg.ChannelID == active.TargetID()
	default:
		return false
	}
}

// BeginHistoryLoad starts a history fetch for target. It reports false and
// leaves earlier tokens valid when target is not the active conversation.
// Otherwise any token issued earlier becomes stale.
func (s *Store) BeginHistoryLoad(target models.Target) (LoadToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if target == nil || !isActive(&s.state, target.Kind(), target.TargetID()) {
		return LoadToken{}, false
	}
	s.loadSeq++
	return LoadToken{
		TargetID: target.TargetID(),
		Kind:     target.Kind(),
		seq:      s.loadSeq,
	}, true
}

// ApplyHistory replaces the message list with list if tok is the latest
// token and its target is still active. It reports whether it applied.
func (s *Store) ApplyHistory(tok LoadToken, list []models.Message) bool {
	applied := false
	s.update(func(st *State) []Change {
		if tok.seq == 0 || tok.seq != s.loadSeq || !isActive(st, tok.Kind, tok.TargetID) {
			return nil
		}
		st.Messages = append([]models.Message(nil), list...)
		applied = true
		return []Change{ChangeMessages}
	})
	return applied
}

// SetUploadProgress records the upload state. A negative percent ends it.
func (s *Store) SetUploadProgress(percent int) {
	s.update(func(st *State) []Change {
		st.Progress.Uploading = percent >= 0
		st.Progress.UploadPercent = clampPercent(percent)
		return []Change{ChangeProgress}
	})
}

// SetDownloadProgress records the download state. A negative percent ends it.
func (s *Store) SetDownloadProgress(percent int) {
	s.update(func(st *State) []Change {
		st.Progress.Downloading = percent >= 0
		st.Progress.DownloadPercent = clampPercent(percent)
		return []Change{ChangeProgress}
	})
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

func cloneTarget(t models.Target) models.Target {
	if t == nil {
		return nil
	}
	return t.CloneTarget()
}
