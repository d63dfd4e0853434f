// Package models defines the data structures exchanged with the chat server.
package models

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// User is a chat account as the server serializes it.
type User struct {
	ID           string   `json:"_id"`
	Email        string   `json:"email,omitempty"`
	FirstName    string   `json:"firstName,omitempty"`
	LastName     string   `json:"lastName,omitempty"`
	Image        string   `json:"image,omitempty"`
	Color        int      `json:"color,omitempty"`
	ProfileSetup bool     `json:"profileSetup,omitempty"`
	BlockedUsers []string `json:"blockedUsers,omitempty"`
}

// DisplayName returns "First Last", falling back to the email.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	return u.Email
}

// HasBlocked reports whether u has blocked the given user id.
func (u User) HasBlocked(id string) bool {
	for _, b := range u.BlockedUsers {
		if b == id {
			return true
		}
	}
	return false
}

// UserRef is a reference to a user that the server sends either as a bare id
// string or as a populated user object.
type UserRef struct {
	ID   string
	User *User
}

// Ref builds a reference from a populated user.
func Ref(u User) UserRef {
	return UserRef{ID: u.ID, User: &u}
}

// RefID builds a bare-id reference.
func RefID(id string) UserRef {
	return UserRef{ID: id}
}

// UnmarshalJSON accepts "id", {"_id": "id", ...} or null.
func (r *UserRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = UserRef{}
		return nil
	}

	switch data[0] {
	case '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = UserRef{ID: id}
		return nil
	case '{':
		var u User
		if err := json.Unmarshal(data, &u); err != nil {
			return err
		}
		*r = UserRef{ID: u.ID, User: &u}
		return nil
	default:
		return fmt.Errorf("user reference: unexpected JSON %q", string(data))
	}
}

// MarshalJSON writes the bare id; outbound payloads reference users by id.
func (r UserRef) MarshalJSON() ([]byte, error) {
	if r.ID == "" {
		return []byte("null"), nil
	}
	return json.Marshal(r.ID)
}
