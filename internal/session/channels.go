package session

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/raphaelgruber/chatsync-go/internal/models"
)

// CreateChannel creates a channel over REST, adds it to the roster and
// announces it to the members.
func (s *Session) CreateChannel(ctx context.Context, name string, memberIDs []string) (*models.Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("create channel: name required")
	}
	if len(memberIDs) == 0 {
		return nil, fmt.Errorf("create channel: members required")
	}
	conn, err := s.conn()
	if err != nil {
		return nil, err
	}

	ch, err := s.client.CreateChannel(ctx, name, memberIDs)
	if err != nil {
		return nil, err
	}
	s.store.UpsertChannel(ch)
	if err := conn.Emit(models.EventCreateChannel, models.CreateChannelPayload{Channel: *ch}); err != nil {
		return ch, fmt.Errorf("announce channel: %w", err)
	}
	return ch, nil
}

// AddMembers adds users to a channel and re-announces it so the new members
// receive it.
func (s *Session) AddMembers(ctx context.Context, channelID string, memberIDs []string) (*models.Channel, error) {
	conn, err := s.conn()
	if err != nil {
		return nil, err
	}
	ch, err := s.client.AddMembers(ctx, channelID, memberIDs)
	if err != nil {
		return nil, err
	}
	s.store.UpsertChannel(ch)
	if err := conn.Emit(models.EventCreateChannel, models.CreateChannelPayload{Channel: *ch}); err != nil {
		return ch, fmt.Errorf("announce channel: %w", err)
	}
	return ch, nil
}

// RenameChannel asks the server to rename a channel. The roster changes when
// the channelRenamed broadcast arrives.
func (s *Session) RenameChannel(channelID, title string) error {
	title = strings.TrimSpace(title)
	if channelID == "" || title == "" {
		return fmt.Errorf("rename channel: id and title required")
	}
	conn, err := s.conn()
	if err != nil {
		return err
	}
	return conn.Emit(models.EventRenameChannel, models.RenameChannelPayload{ChannelID: channelID, NewTitle: title})
}

// DeleteChannel deletes a channel for everyone and drops it locally.
func (s *Session) DeleteChannel(channelID string) error {
	conn, err := s.conn()
	if err != nil {
		return err
	}
	if err := conn.Emit(models.EventDeleteChannel, models.ChannelIDPayload{ChannelID: channelID}); err != nil {
		return err
	}
	s.store.RemoveChannel(channelID)
	return nil
}

// LeaveChannel removes the local user from a channel and drops it locally.
func (s *Session) LeaveChannel(ctx context.Context, channelID string) error {
	if err := s.client.LeaveChannel(ctx, channelID); err != nil {
		return err
	}
	s.store.RemoveChannel(channelID)
	return nil
}

// ChangeChannelImage uploads a new channel image and broadcasts it.
func (s *Session) ChangeChannelImage(ctx context.Context, channelID, filename string, r io.Reader) (string, error) {
	conn, err := s.conn()
	if err != nil {
		return "", err
	}
	url, err := s.client.UploadChannelImage(ctx, channelID, filename, r, s.store.SetUploadProgress)
	s.store.SetUploadProgress(-1)
	if err != nil {
		return "", err
	}
	s.store.UpdateChannelImage(channelID, url)
	return url, conn.Emit(models.EventChangeImageChannel, models.ChannelImagePayload{ChannelID: channelID, URL: url})
}

// RemoveChannelImage deletes the channel image and broadcasts the removal.
func (s *Session) RemoveChannelImage(ctx context.Context, channelID string) error {
	conn, err := s.conn()
	if err != nil {
		return err
	}
	if err := s.client.DeleteChannelImage(ctx, channelID); err != nil {
		return err
	}
	s.store.UpdateChannelImage(channelID, "")
	return conn.Emit(models.EventChangeImageChannel, models.ChannelImagePayload{ChannelID: channelID})
}

// BlockUser asks the server to block id for the local user. The local record
// changes when the blockedUser push arrives.
func (s *Session) BlockUser(id string) error {
	me, err := s.localUser()
	if err != nil {
		return err
	}
	if id == "" || id == me.ID {
		return fmt.Errorf("block user: invalid id %q", id)
	}
	conn, err := s.conn()
	if err != nil {
		return err
	}
	return conn.Emit(models.EventBlockUser, models.BlockUserPayload{IDBlock: id, UserID: me.ID})
}
