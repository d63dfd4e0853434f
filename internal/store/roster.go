package store

import "github.com/raphaelgruber/chatsync-go/internal/models"

type identified interface {
	TargetID() string
}

func indexByID[T identified](list []T, id string) int {
	for i, e := range list {
		if e.TargetID() == id {
			return i
		}
	}
	return -1
}

// uniqueByID keeps the first entry for every id and drops entries without one.
func uniqueByID[T identified](list []T) []T {
	seen := make(map[string]struct{}, len(list))
	out := make([]T, 0, len(list))
	for _, e := range list {
		id := e.TargetID()
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, e)
	}
	return out
}

func unshift[T any](list []T, e T) []T {
	return append([]T{e}, list...)
}

func removeAt[T any](list []T, i int) []T {
	return append(list[:i:i], list[i+1:]...)
}

func isActive(st *State, kind models.TargetKind, id string) bool {
	return st.Active != nil && st.Active.Kind() == kind && st.Active.TargetID() == id
}

// SetContacts replaces the contact roster. Duplicates and the local user
// are dropped.
func (s *Store) SetContacts(list []*models.Contact) {
	s.update(func(st *State) []Change {
		self := s.localID()
		clean := make([]*models.Contact, 0, len(list))
		for _, c := range uniqueByID(list) {
			if c.ID != self {
				clean = append(clean, c.Clone())
			}
		}
		st.Contacts = clean
		return []Change{ChangeContacts}
	})
}

// SetChannels replaces the channel roster.
func (s *Store) SetChannels(list []*models.Channel) {
	s.update(func(st *State) []Change {
		clean := uniqueByID(list)
		for i, c := range clean {
			clean[i] = c.Clone()
		}
		st.Channels = clean
		return []Change{ChangeChannels}
	})
}

// SetAiSessions replaces the AI session roster.
func (s *Store) SetAiSessions(list []*models.AiSession) {
	s.update(func(st *State) []Change {
		clean := uniqueByID(list)
		for i, a := range clean {
			clean[i] = a.Clone()
		}
		st.AiSessions = clean
		return []Change{ChangeAiSessions}
	})
}

// UpsertContact puts c at the front of the contact roster unless an entry
// with its id already exists. Existing entries are never replaced. A contact
// with the local user's id is rejected. It reports whether c was added.
func (s *Store) UpsertContact(c *models.Contact) bool {
	added := false
	s.update(func(st *State) []Change {
		if c == nil || c.ID == "" || c.ID == s.localID() {
			return nil
		}
		if indexByID(st.Contacts, c.ID) >= 0 {
			return nil
		}
		st.Contacts = unshift(st.Contacts, c.Clone())
		added = true
		return []Change{ChangeContacts}
	})
	return added
}

// UpsertChannel replaces the channel with ch's id in place, or puts ch at
// the front when absent. The active snapshot is refreshed when it is ch.
func (s *Store) UpsertChannel(ch *models.Channel) {
	s.update(func(st *State) []Change {
		if ch == nil || ch.ID == "" {
			return nil
		}
		if i := indexByID(st.Channels, ch.ID); i >= 0 {
			st.Channels[i] = ch.Clone()
		} else {
			st.Channels = unshift(st.Channels, ch.Clone())
		}
		if isActive(st, models.KindChannel, ch.ID) {
			st.Active = ch.Clone()
			return []Change{ChangeChannels, ChangeActive}
		}
		return []Change{ChangeChannels}
	})
}

// UpsertAiSession replaces the session with a's id in place, or puts a at
// the front when absent.
func (s *Store) UpsertAiSession(a *models.AiSession) {
	s.update(func(st *State) []Change {
		if a == nil || a.ID == "" {
			return nil
		}
		if i := indexByID(st.AiSessions, a.ID); i >= 0 {
			st.AiSessions[i] = a.Clone()
		} else {
			st.AiSessions = unshift(st.AiSessions, a.Clone())
		}
		if isActive(st, models.KindAI, a.ID) {
			st.Active = a.Clone()
			return []Change{ChangeAiSessions, ChangeActive}
		}
		return []Change{ChangeAiSessions}
	})
}

// RemoveContact drops the contact with id, closing it if it was open.
func (s *Store) RemoveContact(id string) {
	s.update(func(st *State) []Change {
		return removeEntry(st, &st.Contacts, models.KindContact, id, ChangeContacts)
	})
}

// RemoveChannel drops the channel with id, closing it if it was open.
func (s *Store) RemoveChannel(id string) {
	s.update(func(st *State) []Change {
		return removeEntry(st, &st.Channels, models.KindChannel, id, ChangeChannels)
	})
}

// RemoveAiSession drops the AI session with id, closing it if it was open.
func (s *Store) RemoveAiSession(id string) {
	s.update(func(st *State) []Change {
		return removeEntry(st, &st.AiSessions, models.KindAI, id, ChangeAiSessions)
	})
}

func removeEntry[T identified](st *State, list *[]T, kind models.TargetKind, id string, c Change) []Change {
	var changes []Change
	if i := indexByID(*list, id); i >= 0 {
		*list = removeAt(*list, i)
		changes = append(changes, c)
	}
	if isActive(st, kind, id) {
		changes = append(changes, closeConversation(st)...)
	}
	return changes
}

// Channel returns a copy of the roster channel with id.
func (s *Store) Channel(id string) (*models.Channel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexByID(s.state.Channels, id); i >= 0 {
		return s.state.Channels[i].Clone(), true
	}
	return nil, false
}

// Contact returns a copy of the roster contact with id.
func (s *Store) Contact(id string) (*models.Contact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexByID(s.state.Contacts, id); i >= 0 {
		return s.state.Contacts[i].Clone(), true
	}
	return nil, false
}

// AiSession returns a copy of the roster AI session with id.
func (s *Store) AiSession(id string) (*models.AiSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexByID(s.state.AiSessions, id); i >= 0 {
		return s.state.AiSessions[i].Clone(), true
	}
	return nil, false
}

// RenameChannel sets the channel name on the roster and on the active
// snapshot.
func (s *Store) RenameChannel(id, name string) {
	s.mutateChannel(id, func(ch *models.Channel) { ch.Name = name })
}

// UpdateChannelImage sets the channel image. An empty url removes it.
func (s *Store) UpdateChannelImage(id, url string) {
	s.mutateChannel(id, func(ch *models.Channel) { ch.Image = url })
}

// RemoveChannelMember drops memberID from the channel's member list.
func (s *Store) RemoveChannelMember(channelID, memberID string) {
	if memberID == "" {
		return
	}
	s.mutateChannel(channelID, func(ch *models.Channel) {
		members := ch.Members[:0:0]
		for _, m := range ch.Members {
			if m.ID != memberID {
				members = append(members, m)
			}
		}
		ch.Members = members
	})
}

func (s *Store) mutateChannel(id string, fn func(*models.Channel)) {
	if id == "" {
		return
	}
	s.update(func(st *State) []Change {
		var changes []Change
		if i := indexByID(st.Channels, id); i >= 0 {
			fn(st.Channels[i])
			changes = append(changes, ChangeChannels)
		}
		if isActive(st, models.KindChannel, id) {
			fn(st.Active.(*models.Channel))
			changes = append(changes, ChangeActive)
		}
		return changes
	})
}
