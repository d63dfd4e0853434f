package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/chatsync-go/internal/models"
	"github.com/raphaelgruber/chatsync-go/internal/session"
	"github.com/raphaelgruber/chatsync-go/internal/store"
)

// targetFlags selects a contact or a channel conversation.
type targetFlags struct {
	contact string
	channel string
}

func (f *targetFlags) register(cmd *cobra.Command, required bool) {
	cmd.Flags().StringVar(&f.contact, "contact", "", "contact user id")
	cmd.Flags().StringVar(&f.channel, "channel", "", "channel id")
	cmd.MarkFlagsMutuallyExclusive("contact", "channel")
	if required {
		cmd.MarkFlagsOneRequired("contact", "channel")
	}
}

func (f *targetFlags) set() bool { return f.contact != "" || f.channel != "" }

// resolve finds the selected conversation in the roster. Contacts without
// prior messages are not in the DM roster, so a bare one is built for them.
func (f *targetFlags) resolve(s *session.Session) (models.Target, error) {
	if f.channel != "" {
		ch, ok := s.Store().Channel(f.channel)
		if !ok {
			return nil, fmt.Errorf("channel %s not found", f.channel)
		}
		return ch, nil
	}
	if c, ok := s.Store().Contact(f.contact); ok {
		return c, nil
	}
	return &models.Contact{User: models.User{ID: f.contact}}, nil
}

// waitForMessage blocks until the store's message list grows past n or the
// timeout passes.
func waitForMessage(s *session.Session, n int, timeout time.Duration) bool {
	grew := make(chan struct{}, 1)
	unlisten := s.Store().Listen(func(c store.Change) {
		if c == store.ChangeMessages && len(s.Store().Messages()) > n {
			select {
			case grew <- struct{}{}:
			default:
			}
		}
	})
	defer unlisten()

	if len(s.Store().Messages()) > n {
		return true
	}
	select {
	case <-grew:
		return true
	case <-time.After(timeout):
		return false
	}
}

// senderName resolves a direct message sender through the roster.
func senderName(s *session.Session, ref models.UserRef) string {
	if ref.User != nil {
		return ref.User.DisplayName()
	}
	if me := s.Store().LocalUser(); me != nil && me.ID == ref.ID {
		return "me"
	}
	if c, ok := s.Store().Contact(ref.ID); ok {
		return c.DisplayName()
	}
	return ref.ID
}

func formatMessage(s *session.Session, m models.Message) string {
	var from, body string
	switch msg := m.(type) {
	case *models.DirectMessage:
		from = senderName(s, msg.Sender)
		body = messageBody(msg.MessageType, msg.Content, msg.FileURL)
		if msg.MessageType == models.MessageCall && msg.CallTime != "" {
			body += " (" + msg.CallTime + ")"
		}
	case *models.ChannelMessage:
		from = msg.Sender.DisplayName()
		if from == "" {
			from = msg.Sender.ID
		}
		body = messageBody(msg.MessageType, msg.Content, msg.FileURL)
	default:
		return ""
	}

	ts := ""
	if !m.SentAt().IsZero() {
		ts = defaultTheme.hintStyle().Render(m.SentAt().Local().Format("2006-01-02 15:04")) + " "
	}
	return fmt.Sprintf("%s%s: %s", ts, defaultTheme.statusStyle().Render(from), body)
}

func messageBody(kind models.MessageType, content, fileURL string) string {
	switch kind {
	case models.MessageFile:
		return "[file] " + fileURL
	case models.MessageCall:
		return "[call]"
	default:
		return strings.TrimSpace(content)
	}
}
