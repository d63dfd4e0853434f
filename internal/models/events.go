package models

import "github.com/goccy/go-json"

// Inbound event names (server to client). The "recieve" spelling is part of
// the server protocol.
const (
	EventReceiveMessage        = "recieveMessage"
	EventReceiveChannelMessage = "recieveChannelMessage"
	EventOnlineUsers           = "onlineUsers"
	EventBlockedUser           = "blockedUser"
	EventChannelRenamed        = "channelRenamed"
	EventChannelDeleted        = "channelDeleted"
	EventChannelChangedImage   = "channelChangedImage"
	EventAddDirectContact      = "addDirectContact"
	EventCallAccepted          = "callAccepted"
)

// Outbound event names (client to server).
const (
	EventSendMessage        = "sendMessage"
	EventSendChannelMessage = "sendChannelMessage"
	EventRenameChannel      = "renameChannel"
	EventDeleteChannel      = "deleteChannel"
	EventChangeImageChannel = "changeImageChannel"
	EventBlockUser          = "blockUser"
	EventAnswerCall         = "answerCall"
)

// Events used in both directions. The server relays createChannel to the
// members of the new or changed channel.
const (
	EventCallUser      = "callUser"
	EventCallEnded     = "callEnded"
	EventCreateChannel = "createChannel"
)

// OutboundMessage is the message body of sendMessage and sendChannelMessage.
// Exactly one of Recipient or ChannelID is set.
type OutboundMessage struct {
	Sender      string      `json:"sender"`
	Recipient   string      `json:"recipient,omitempty"`
	ChannelID   string      `json:"channelId,omitempty"`
	MessageType MessageType `json:"messageType"`
	Content     string      `json:"content,omitempty"`
	FileURL     string      `json:"fileUrl,omitempty"`
	CallTime    string      `json:"callTime,omitempty"`
}

// SendMessagePayload is the sendMessage body.
type SendMessagePayload struct {
	Message OutboundMessage `json:"message"`
	Contact User            `json:"contact"`
}

// SendChannelMessagePayload is the sendChannelMessage body.
type SendChannelMessagePayload struct {
	Message OutboundMessage `json:"message"`
}

// ChannelRenamedPayload is pushed after any member renames a channel.
type ChannelRenamedPayload struct {
	ChannelID string `json:"channelId"`
	Title     string `json:"title"`
}

// RenameChannelPayload requests a rename.
type RenameChannelPayload struct {
	ChannelID string `json:"channelId"`
	NewTitle  string `json:"newTitle"`
}

// ChannelImagePayload carries channelChangedImage and changeImageChannel.
// URL is empty when the image was removed.
type ChannelImagePayload struct {
	ChannelID string `json:"channelId"`
	URL       string `json:"url"`
}

// ChannelIDPayload carries deleteChannel and, in object form, channelDeleted.
type ChannelIDPayload struct {
	ChannelID string `json:"channelId"`
}

// CreateChannelPayload announces a new or changed channel to its members.
type CreateChannelPayload struct {
	Channel Channel `json:"channel"`
}

// BlockUserPayload asks the server to block IDBlock on behalf of UserID.
type BlockUserPayload struct {
	IDBlock string `json:"idBlock"`
	UserID  string `json:"userId"`
}

// CallUserPayload is the offer exchange. Inbound payloads have historically
// used both "signal" and "signalData" for the offer.
type CallUserPayload struct {
	SignalData json.RawMessage `json:"signalData,omitempty"`
	Signal     json.RawMessage `json:"signal,omitempty"`
	From       User            `json:"from"`
	UserToCall User            `json:"userToCall"`
}

// Offer returns whichever offer field is populated.
func (p CallUserPayload) Offer() json.RawMessage {
	if len(p.SignalData) > 0 && string(p.SignalData) != "null" {
		return p.SignalData
	}
	return p.Signal
}

// AnswerCallPayload returns the answer to the caller.
type AnswerCallPayload struct {
	Signal json.RawMessage `json:"signal"`
	To     User            `json:"to"`
}

// CallEndedPayload notifies the remote side of a hangup.
type CallEndedPayload struct {
	To User `json:"to"`
}
