package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/raphaelgruber/chatsync-go/internal/models"
)

// Server routes, relative to the base URL.
const (
	routeLogin            = "api/auth/login"
	routeLogout           = "api/auth/logout"
	routeUserInfo         = "api/users/user-info"
	routeSearchContacts   = "api/contacts/search"
	routeDMContacts       = "api/contacts/get-contacts-for-dm"
	routeAllContacts      = "api/contacts/get-all-contacts"
	routeCreateChannel    = "api/channel/create"
	routeUserChannels     = "api/channel/get-user-channels"
	routeChannelMessages  = "api/channel/get-channel-messages/"
	routeAddMembers       = "api/channel/add-members"
	routeLeaveChannel     = "api/channel/leave-channel"
	routeDirectMessages   = "api/messages/get-messages-by-user"
	routeUploadFile       = "api/messages/upload-file"
	routeSessions         = "api/chatbot/get-sessions"
	routeCreateSession    = "api/chatbot/create-session"
	routeAddMessage       = "api/chatbot/add-message-session"
	routeDeleteSession    = "api/chatbot/delete-session"
	routeUploadChannelImg = "api/channel/upload-image"
	routeDeleteChannelImg = "api/channel/delete-image"
)

// =============================================================================
// AUTH
// =============================================================================

// LoginResult is the login response body.
type LoginResult struct {
	User         models.User `json:"data"`
	ProfileSetup bool        `json:"profileSetup"`
}

// Login authenticates and stores the session cookie in the jar.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var resp LoginResult
	body := map[string]string{"email": email, "password": password}
	if err := c.Execute(ctx, http.MethodPost, routeLogin, body, &resp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &resp, nil
}

// Logout ends the server session and drops the local cookie.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.Execute(ctx, http.MethodPost, routeLogout, struct{}{}, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	c.jar.SetCookies(c.baseURL, []*http.Cookie{{Name: CookieName, Value: "", Path: "/", MaxAge: -1}})
	return nil
}

// UserInfo returns the authenticated user.
func (c *Client) UserInfo(ctx context.Context) (*models.User, error) {
	var resp struct {
		User *models.User `json:"user"`
	}
	if err := c.Execute(ctx, http.MethodGet, routeUserInfo, nil, &resp); err != nil {
		return nil, fmt.Errorf("user info: %w", err)
	}
	if resp.User == nil || resp.User.ID == "" {
		return nil, fmt.Errorf("user info: %w", ErrUnauthorized)
	}
	return resp.User, nil
}

// =============================================================================
// HISTORY
// =============================================================================

// DirectMessages returns the conversation with the given contact.
func (c *Client) DirectMessages(ctx context.Context, contactID string) ([]*models.DirectMessage, error) {
	var resp struct {
		Data []*models.DirectMessage `json:"data"`
	}
	body := map[string]string{"id": contactID}
	if err := c.Execute(ctx, http.MethodPost, routeDirectMessages, body, &resp); err != nil {
		return nil, fmt.Errorf("get direct messages: %w", err)
	}
	return resp.Data, nil
}

// ChannelMessages returns the history of a channel.
func (c *Client) ChannelMessages(ctx context.Context, channelID string) ([]*models.ChannelMessage, error) {
	var resp struct {
		Messages []*models.ChannelMessage `json:"messages"`
	}
	path := routeChannelMessages + url.PathEscape(channelID)
	if err := c.Execute(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get channel messages: %w", err)
	}
	return resp.Messages, nil
}

// =============================================================================
// ROSTER
// =============================================================================

// DMContacts returns the contacts with direct-message history, most recent
// first.
func (c *Client) DMContacts(ctx context.Context) ([]*models.Contact, error) {
	var resp struct {
		Data []*models.Contact `json:"data"`
	}
	if err := c.Execute(ctx, http.MethodGet, routeDMContacts, nil, &resp); err != nil {
		return nil, fmt.Errorf("get dm contacts: %w", err)
	}
	return resp.Data, nil
}

// AllContacts returns every user the local user may message.
func (c *Client) AllContacts(ctx context.Context) ([]*models.Contact, error) {
	var resp struct {
		Contacts []*models.Contact `json:"contacts"`
	}
	if err := c.Execute(ctx, http.MethodGet, routeAllContacts, nil, &resp); err != nil {
		return nil, fmt.Errorf("get all contacts: %w", err)
	}
	return resp.Contacts, nil
}

// SearchContacts finds users by name or email.
func (c *Client) SearchContacts(ctx context.Context, term string) ([]*models.Contact, error) {
	var resp struct {
		Contacts []*models.Contact `json:"contacts"`
	}
	body := map[string]string{"searchTerm": term}
	if err := c.Execute(ctx, http.MethodPost, routeSearchContacts, body, &resp); err != nil {
		return nil, fmt.Errorf("search contacts: %w", err)
	}
	return resp.Contacts, nil
}

// UserChannels returns the channels the local user belongs to.
func (c *Client) UserChannels(ctx context.Context) ([]*models.Channel, error) {
	var resp struct {
		Channels []*models.Channel `json:"channels"`
	}
	if err := c.Execute(ctx, http.MethodGet, routeUserChannels, nil, &resp); err != nil {
		return nil, fmt.Errorf("get user channels: %w", err)
	}
	return resp.Channels, nil
}

// CreateChannel creates a channel with the given member ids.
func (c *Client) CreateChannel(ctx context.Context, name string, memberIDs []string) (*models.Channel, error) {
	var resp struct {
		Channel *models.Channel `json:"channel"`
	}
	body := map[string]any{"name": name, "members": memberIDs}
	if err := c.Execute(ctx, http.MethodPost, routeCreateChannel, body, &resp); err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	if resp.Channel == nil {
		return nil, fmt.Errorf("create channel: empty response")
	}
	return resp.Channel, nil
}

// AddMembers adds users to a channel and returns the updated channel.
func (c *Client) AddMembers(ctx context.Context, channelID string, memberIDs []string) (*models.Channel, error) {
	var resp struct {
		Channel *models.Channel `json:"channel"`
	}
	body := map[string]any{"channelId": channelID, "members": memberIDs}
	if err := c.Execute(ctx, http.MethodPost, routeAddMembers, body, &resp); err != nil {
		return nil, fmt.Errorf("add members: %w", err)
	}
	if resp.Channel == nil {
		return nil, fmt.Errorf("add members: empty response")
	}
	return resp.Channel, nil
}

// LeaveChannel removes the local user from a channel.
func (c *Client) LeaveChannel(ctx context.Context, channelID string) error {
	body := map[string]string{"channelId": channelID}
	if err := c.Execute(ctx, http.MethodPost, routeLeaveChannel, body, nil); err != nil {
		return fmt.Errorf("leave channel: %w", err)
	}
	return nil
}

// DeleteChannelImage removes a channel's image.
func (c *Client) DeleteChannelImage(ctx context.Context, channelID string) error {
	body := map[string]string{"channelId": channelID}
	if err := c.Execute(ctx, http.MethodPost, routeDeleteChannelImg, body, nil); err != nil {
		return fmt.Errorf("delete channel image: %w", err)
	}
	return nil
}

// =============================================================================
// AI SESSIONS
// =============================================================================

// AiSessions returns the stored assistant sessions.
func (c *Client) AiSessions(ctx context.Context) ([]*models.AiSession, error) {
	var resp struct {
		Data     []*models.AiSession `json:"data"`
		Sessions []*models.AiSession `json:"sessions"`
	}
	if err := c.Execute(ctx, http.MethodGet, routeSessions, nil, &resp); err != nil {
		return nil, fmt.Errorf("get ai sessions: %w", err)
	}
	if resp.Sessions != nil {
		return resp.Sessions, nil
	}
	return resp.Data, nil
}

// CreateAiSession starts a new assistant session.
func (c *Client) CreateAiSession(ctx context.Context, title string, kind models.SessionType) (*models.AiSession, error) {
	var resp struct {
		Session *models.AiSession `json:"sessionChat"`
	}
	body := map[string]any{"title": title, "sessionType": kind}
	if err := c.Execute(ctx, http.MethodPost, routeCreateSession, body, &resp); err != nil {
		return nil, fmt.Errorf("create ai session: %w", err)
	}
	if resp.Session == nil {
		return nil, fmt.Errorf("create ai session: empty response")
	}
	return resp.Session, nil
}

// AddAiMessage persists one turn. updateTitle is sent with user turns and
// reports whether the title was already derived.
func (c *Client) AddAiMessage(ctx context.Context, sessionID string, msg models.AiMessage, updateTitle *bool) error {
	body := map[string]any{"sessionId": sessionID, "newMessage": msg}
	if updateTitle != nil {
		body["isUpdateTitle"] = *updateTitle
	}
	if err := c.Execute(ctx, http.MethodPost, routeAddMessage, body, nil); err != nil {
		return fmt.Errorf("add ai message: %w", err)
	}
	return nil
}

// DeleteAiSession removes a session.
func (c *Client) DeleteAiSession(ctx context.Context, sessionID string) error {
	body := map[string]string{"sessionId": sessionID}
	if err := c.Execute(ctx, http.MethodPost, routeDeleteSession, body, nil); err != nil {
		return fmt.Errorf("delete ai session: %w", err)
	}
	return nil
}
