package models

import "time"

// MessageType is the payload kind of a chat message.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageFile  MessageType = "file"
	MessageCall  MessageType = "call"
	MessageImage MessageType = "image"
)

// Message is an entry of the real-time message list. Implementations are
// *DirectMessage and *ChannelMessage.
type Message interface {
	MessageID() string
	Type() MessageType
	SentAt() time.Time
}

// DirectMessage is a one-to-one message between two users.
type DirectMessage struct {
	ID          string      `json:"_id,omitempty"`
	Sender      UserRef     `json:"sender"`
	Recipient   UserRef     `json:"recipient"`
	MessageType MessageType `json:"messageType"`
	Content     string      `json:"content,omitempty"`
	FileURL     string      `json:"fileUrl,omitempty"`
	CallTime    string      `json:"callTime,omitempty"`
	Timestamp   time.Time   `json:"timestamp,omitempty"`
}

func (m *DirectMessage) MessageID() string { return m.ID }
func (m *DirectMessage) Type() MessageType { return m.MessageType }
func (m *DirectMessage) SentAt() time.Time { return m.Timestamp }

// Involves reports whether id is the sender or the recipient.
func (m *DirectMessage) Involves(id string) bool {
	return id != "" && (m.Sender.ID == id || m.Recipient.ID == id)
}

// ChannelMessage is a message posted to a channel. The sender is always
// populated by the server.
type ChannelMessage struct {
	ID          string      `json:"_id,omitempty"`
	Sender      User        `json:"sender"`
	ChannelID   string      `json:"channelId"`
	MessageType MessageType `json:"messageType"`
	Content     string      `json:"content,omitempty"`
	FileURL     string      `json:"fileUrl,omitempty"`
	Timestamp   time.Time   `json:"timestamp,omitempty"`
}

func (m *ChannelMessage) MessageID() string { return m.ID }
func (m *ChannelMessage) Type() MessageType { return m.MessageType }
func (m *ChannelMessage) SentAt() time.Time { return m.Timestamp }
