package store

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/chatsync-go/internal/models"
)

func contact(id string) *models.Contact {
	return &models.Contact{User: models.User{ID: id, FirstName: id}}
}

func channel(id string, members ...string) *models.Channel {
	ch := &models.Channel{ID: id, Name: "chan-" + id}
	for _, m := range members {
		ch.Members = append(ch.Members, models.User{ID: m})
	}
	return ch
}

func direct(from, to, text string) *models.DirectMessage {
	return &models.DirectMessage{
		Sender:      models.RefID(from),
		Recipient:   models.RefID(to),
		MessageType: models.MessageText,
		Content:     text,
	}
}

func channelMsg(channelID, text string) *models.ChannelMessage {
	return &models.ChannelMessage{
		Sender:      models.User{ID: "someone"},
		ChannelID:   channelID,
		MessageType: models.MessageText,
		Content:     text,
	}
}

func ids[T identified](list []T) []string {
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.TargetID()
	}
	return out
}

func TestSelectTargetClearsMessagesOnSwitch(t *testing.T) {
	s := New()
	targets := []models.Target{contact("a"), contact("a"), channel("c1"), contact("b"), channel("c1"), channel("c1")}
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		prev := s.Active()
		next := targets[rng.Intn(len(targets))]
		s.ReplaceMessageList([]models.Message{direct("x", "y", "seed")})

		s.SelectTarget(next)

		if prev == nil || prev.TargetID() != next.TargetID() {
			require.Empty(t, s.Messages(), "step %d: switch %v -> %s", i, prev, next.TargetID())
		} else {
			require.Len(t, s.Messages(), 1, "step %d: reselect keeps list", i)
		}
	}
}

func TestSelectTargetStoresCopy(t *testing.T) {
	s := New()
	ch := channel("c1")
	s.SelectTarget(ch)
	ch.Name = "mutated"

	assert.Equal(t, "chan-c1", s.Active().(*models.Channel).Name)

	s.SelectTarget(nil)
	assert.Nil(t, s.Active())
}

func TestAppendIncomingMessage(t *testing.T) {
	tests := []struct {
		name   string
		active models.Target
		msg    models.Message
		want   bool
	}{
		{"no active target", nil, direct("a", "me", "hi"), false},
		{"direct from active contact", contact("a"), direct("a", "me", "hi"), true},
		{"direct to active contact", contact("a"), direct("me", "a", "hi"), true},
		{"direct for other contact", contact("a"), direct("b", "me", "hi"), false},
		{"direct while channel open", channel("a"), direct("a", "me", "hi"), false},
		{"channel message for active channel", channel("c1"), channelMsg("c1", "hi"), true},
		{"channel message for other channel", channel("c1"), channelMsg("c2", "hi"), false},
		{"channel message while contact open", contact("c1"), channelMsg("c1", "hi"), false},
		{"ai session never matches", &models.AiSession{ID: "a"}, direct("a", "me", "hi"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.SelectTarget(tt.active)
			before := s.Messages()

			got := s.AppendIncomingMessage(tt.msg)

			assert.Equal(t, tt.want, got)
			if tt.want {
				assert.Len(t, s.Messages(), len(before)+1)
			} else {
				assert.Equal(t, before, s.Messages())
			}
		})
	}
}

func TestRosterUniqueness(t *testing.T) {
	s := New()
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("id%d", rng.Intn(8))
		switch rng.Intn(3) {
		case 0:
			s.UpsertContact(contact(id))
		case 1:
			s.UpsertChannel(channel(id))
		case 2:
			s.UpsertAiSession(&models.AiSession{ID: id})
		}
	}

	st := s.Snapshot()
	for name, list := range map[string][]string{
		"contacts":    ids(st.Contacts),
		"channels":    ids(st.Channels),
		"ai sessions": ids(st.AiSessions),
	} {
		seen := map[string]bool{}
		for _, id := range list {
			assert.False(t, seen[id], "%s: duplicate %s", name, id)
			seen[id] = true
		}
	}
}

func TestUpsertContactRejectsSelf(t *testing.T) {
	s := New()
	s.SetLocalUser(&models.User{ID: "me"})

	assert.False(t, s.UpsertContact(contact("me")))
	assert.False(t, s.UpsertContact(contact("")))
	assert.True(t, s.UpsertContact(contact("a")))
	assert.Equal(t, []string{"a"}, ids(s.Snapshot().Contacts))

	s.SetContacts([]*models.Contact{contact("me"), contact("b"), contact("b")})
	assert.Equal(t, []string{"b"}, ids(s.Snapshot().Contacts))
}

func TestUpsertContactNeverReplaces(t *testing.T) {
	s := New()
	s.UpsertContact(contact("a"))
	s.UpsertContact(contact("b"))

	renamed := contact("a")
	renamed.FirstName = "changed"
	assert.False(t, s.UpsertContact(renamed))

	st := s.Snapshot()
	assert.Equal(t, []string{"b", "a"}, ids(st.Contacts))
	assert.Equal(t, "a", st.Contacts[1].FirstName)
}

func TestUpsertChannelReplacesInPlace(t *testing.T) {
	s := New()
	s.UpsertChannel(channel("c1"))
	s.UpsertChannel(channel("c2"))

	updated := channel("c1", "u1")
	updated.Name = "renamed"
	s.SelectTarget(channel("c1"))
	s.UpsertChannel(updated)

	st := s.Snapshot()
	assert.Equal(t, []string{"c2", "c1"}, ids(st.Channels))
	assert.Equal(t, "renamed", st.Channels[1].Name)
	assert.Equal(t, "renamed", st.Active.(*models.Channel).Name)
}

func TestRemoveActiveEntryClosesConversation(t *testing.T) {
	s := New()
	s.SetChannels([]*models.Channel{channel("a"), channel("b")})
	s.SelectTarget(channel("a"))
	s.ReplaceMessageList([]models.Message{channelMsg("a", "hi")})

	s.RemoveChannel("a")

	st := s.Snapshot()
	assert.Equal(t, []string{"b"}, ids(st.Channels))
	assert.Nil(t, st.Active)
	assert.Empty(t, st.Messages)
}

func TestRemoveInactiveEntryKeepsConversation(t *testing.T) {
	s := New()
	s.SetAiSessions([]*models.AiSession{{ID: "a"}, {ID: "b"}})
	s.SelectTarget(&models.AiSession{ID: "b"})

	s.RemoveAiSession("a")
	s.RemoveAiSession("missing")

	st := s.Snapshot()
	assert.Equal(t, []string{"b"}, ids(st.AiSessions))
	require.NotNil(t, st.Active)
	assert.Equal(t, "b", st.Active.TargetID())

	s.RemoveAiSession("b")
	assert.Nil(t, s.Active())
}

func TestRemoveDifferentKindSameIDKeepsConversation(t *testing.T) {
	s := New()
	s.SetContacts([]*models.Contact{contact("x")})
	s.SetChannels([]*models.Channel{channel("x")})
	s.SelectTarget(contact("x"))

	s.RemoveChannel("x")

	assert.NotNil(t, s.Active())
	assert.Len(t, s.Snapshot().Contacts, 1)

	s.RemoveContact("x")
	assert.Nil(t, s.Active())
}

func TestRenameChannelIsIdempotentAndMirrored(t *testing.T) {
	apply := func(times int) State {
		s := New()
		s.SetChannels([]*models.Channel{channel("c1"), channel("c2")})
		s.SelectTarget(channel("c1"))
		for i := 0; i < times; i++ {
			s.RenameChannel("c1", "X")
		}
		return s.Snapshot()
	}

	once, twice := apply(1), apply(2)
	assert.Equal(t, once, twice)
	assert.Equal(t, "X", once.Channels[0].Name)
	assert.Equal(t, "X", once.Active.(*models.Channel).Name)
	assert.Equal(t, "chan-c2", once.Channels[1].Name)
}

func TestRenameChannelNotActive(t *testing.T) {
	s := New()
	s.SetChannels([]*models.Channel{channel("c1")})
	s.SelectTarget(contact("c1"))

	s.RenameChannel("c1", "X")

	st := s.Snapshot()
	assert.Equal(t, "X", st.Channels[0].Name)
	assert.IsType(t, &models.Contact{}, st.Active)
}

func TestUpdateChannelImageAndMembers(t *testing.T) {
	s := New()
	s.SetChannels([]*models.Channel{channel("c1", "u1", "u2", "u3")})
	s.SelectTarget(channel("c1", "u1", "u2", "u3"))

	s.UpdateChannelImage("c1", "uploads/c1.png")
	s.RemoveChannelMember("c1", "u2")
	s.RemoveChannelMember("c1", "")

	st := s.Snapshot()
	active := st.Active.(*models.Channel)
	assert.Equal(t, "uploads/c1.png", st.Channels[0].Image)
	assert.Equal(t, "uploads/c1.png", active.Image)
	assert.False(t, st.Channels[0].HasMember("u2"))
	assert.False(t, active.HasMember("u2"))
	assert.True(t, active.HasMember("u3"))

	s.UpdateChannelImage("c1", "")
	assert.Empty(t, s.Snapshot().Channels[0].Image)
}

func TestHistoryTokenRejectsStaleLoads(t *testing.T) {
	s := New()
	s.SelectTarget(contact("a"))
	tokA, ok := s.BeginHistoryLoad(contact("a"))
	require.True(t, ok)

	s.SelectTarget(contact("b"))
	tokB, ok := s.BeginHistoryLoad(contact("b"))
	require.True(t, ok)

	assert.False(t, s.ApplyHistory(tokA, []models.Message{direct("a", "me", "old")}))
	assert.Empty(t, s.Messages())

	assert.True(t, s.ApplyHistory(tokB, []models.Message{direct("b", "me", "new")}))
	require.Len(t, s.Messages(), 1)

	// A newer fetch for the same target supersedes an older one.
	tok1, _ := s.BeginHistoryLoad(contact("b"))
	tok2, _ := s.BeginHistoryLoad(contact("b"))
	assert.False(t, s.ApplyHistory(tok1, nil))
	assert.True(t, s.ApplyHistory(tok2, nil))

	s.CloseConversation()
	_, ok = s.BeginHistoryLoad(contact("b"))
	assert.False(t, ok)
	assert.False(t, s.ApplyHistory(LoadToken{}, []models.Message{direct("b", "me", "x")}))
}

func TestHistoryLoadForInactiveTargetKeepsActiveToken(t *testing.T) {
	s := New()
	s.SelectTarget(contact("b"))
	tokB, ok := s.BeginHistoryLoad(contact("b"))
	require.True(t, ok)

	// A late start for a previously selected target must not bump the sequence.
	_, ok = s.BeginHistoryLoad(contact("a"))
	assert.False(t, ok)
	_, ok = s.BeginHistoryLoad(nil)
	assert.False(t, ok)

	assert.True(t, s.ApplyHistory(tokB, []models.Message{direct("b", "me", "hi")}))
	assert.Len(t, s.Messages(), 1)
}

func TestHistoryTokenChecksKind(t *testing.T) {
	s := New()
	s.SelectTarget(contact("x"))

	_, ok := s.BeginHistoryLoad(channel("x"))
	assert.False(t, ok, "channel with the active contact's id is a different target")

	tok, ok := s.BeginHistoryLoad(contact("x"))
	require.True(t, ok)
	assert.Equal(t, models.KindContact, tok.Kind)

	// Same id, other kind: the token no longer matches the active target.
	s.SelectTarget(channel("x"))
	assert.False(t, s.ApplyHistory(tok, []models.Message{direct("x", "me", "dm")}))
	assert.Empty(t, s.Messages())
}

func TestAiSessionMutations(t *testing.T) {
	s := New()
	s.SetAiSessions([]*models.AiSession{{ID: "s1", Title: "New chat"}, {ID: "s2"}})
	s.SelectTarget(&models.AiSession{ID: "s1", Title: "New chat"})

	assert.True(t, s.AppendAiMessage("s1", models.AiMessage{Role: models.RoleUser, Content: "hi"}))
	assert.True(t, s.SetAiSessionTitle("s1", "hi"))
	assert.True(t, s.AppendAiMessage("s2", models.AiMessage{Role: models.RoleUser, Content: "other"}))
	assert.False(t, s.AppendAiMessage("missing", models.AiMessage{}))

	st := s.Snapshot()
	active := st.Active.(*models.AiSession)
	assert.Len(t, active.Messages, 1)
	assert.Equal(t, "hi", active.Title)
	assert.True(t, active.IsUpdateTitle)
	assert.Len(t, st.AiSessions[0].Messages, 1)
	assert.Len(t, st.AiSessions[1].Messages, 1)
	assert.Empty(t, st.Messages, "AI turns never enter the real-time list")
}

func TestListenReportsChanges(t *testing.T) {
	s := New()
	var got []Change
	unlisten := s.Listen(func(c Change) { got = append(got, c) })

	s.SelectTarget(contact("a"))
	s.AppendIncomingMessage(direct("z", "y", "dropped"))
	s.AppendIncomingMessage(direct("a", "me", "hi"))
	unlisten()
	s.CloseConversation()

	assert.Equal(t, []Change{ChangeActive, ChangeMessages, ChangeMessages}, got)
}

func TestProgress(t *testing.T) {
	s := New()
	s.SetUploadProgress(150)
	assert.Equal(t, Progress{Uploading: true, UploadPercent: 100}, s.Snapshot().Progress)

	s.SetUploadProgress(-1)
	s.SetDownloadProgress(40)
	assert.Equal(t, Progress{Downloading: true, DownloadPercent: 40}, s.Snapshot().Progress)
}
