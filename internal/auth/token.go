// Package auth derives the local identity from the session token.
//
// The token is parsed without verifying its signature: the client has no key
// and the server checks every request anyway. The identity is only used to
// address the realtime connection and to tell own messages apart.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoSession is returned when no session token is available.
	ErrNoSession = errors.New("no session")

	// ErrExpired is returned for tokens past their expiry.
	ErrExpired = errors.New("session expired")
)

// Claims is the payload of the session token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// Identity returns the user id the token was issued for.
func (c *Claims) Identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Parse decodes a session token. now is used for the expiry check.
func Parse(token string, now time.Time) (*Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, ErrNoSession
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(now) {
		return nil, ErrExpired
	}
	if claims.Identity() == "" {
		return nil, fmt.Errorf("parse session token: no user id")
	}
	return claims, nil
}

// FromJar finds the named session cookie for u and parses it.
func FromJar(jar http.CookieJar, u *url.URL, name string) (*Claims, error) {
	if jar == nil {
		return nil, ErrNoSession
	}
	for _, ck := range jar.Cookies(u) {
		if ck.Name == name && ck.Value != "" {
			return Parse(ck.Value, time.Now())
		}
	}
	return nil, ErrNoSession
}
