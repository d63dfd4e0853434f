package store

import "github.com/raphaelgruber/chatsync-go/internal/models"

// AppendAiMessage adds msg to the AI session with sessionID, on the roster
// and on the active snapshot. It reports whether any copy was updated.
func (s *Store) AppendAiMessage(sessionID string, msg models.AiMessage) bool {
	return s.mutateAiSession(sessionID, func(a *models.AiSession) {
		a.Messages = append(a.Messages, msg)
	})
}

// SetAiSessionTitle retitles the session and marks the title as derived.
func (s *Store) SetAiSessionTitle(sessionID, title string) bool {
	return s.mutateAiSession(sessionID, func(a *models.AiSession) {
		a.Title = title
		a.IsUpdateTitle = true
	})
}

func (s *Store) mutateAiSession(id string, fn func(*models.AiSession)) bool {
	if id == "" {
		return false
	}
	touched := false
	s.update(func(st *State) []Change {
		var changes []Change
		if i := indexByID(st.AiSessions, id); i >= 0 {
			fn(st.AiSessions[i])
			changes = append(changes, ChangeAiSessions)
		}
		if isActive(st, models.KindAI, id) {
			fn(st.Active.(*models.AiSession))
			changes = append(changes, ChangeActive)
		}
		touched = len(changes) > 0
		return changes
	})
	return touched
}
