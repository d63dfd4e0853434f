package auth

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return tok
}

func TestParse(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		token   func(t *testing.T) string
		wantID  string
		wantErr error
	}{
		{"user id claim", func(t *testing.T) string {
			return sign(t, jwt.MapClaims{"userId": "u1", "email": "a@b.c", "exp": now.Add(time.Hour).Unix()})
		}, "u1", nil},
		{"subject fallback", func(t *testing.T) string {
			return sign(t, jwt.MapClaims{"sub": "u2"})
		}, "u2", nil},
		{"bearer prefix", func(t *testing.T) string {
			return "Bearer " + sign(t, jwt.MapClaims{"userId": "u3"})
		}, "u3", nil},
		{"expired", func(t *testing.T) string {
			return sign(t, jwt.MapClaims{"userId": "u1", "exp": now.Add(-time.Minute).Unix()})
		}, "", ErrExpired},
		{"empty", func(t *testing.T) string { return "" }, "", ErrNoSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := Parse(tt.token(t), now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, claims.Identity())
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not-a-token", time.Now())
	assert.Error(t, err)

	_, err = Parse(sign(t, jwt.MapClaims{"email": "x@y.z"}), time.Now())
	assert.Error(t, err)
}

func TestFromJar(t *testing.T) {
	u, err := url.Parse("http://chat.local/")
	require.NoError(t, err)

	_, err = FromJar(nil, u, "jwt")
	assert.ErrorIs(t, err, ErrNoSession)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	_, err = FromJar(jar, u, "jwt")
	assert.ErrorIs(t, err, ErrNoSession)

	jar.SetCookies(u, []*http.Cookie{{Name: "jwt", Value: sign(t, jwt.MapClaims{"userId": "me"}), Path: "/"}})
	claims, err := FromJar(jar, u, "jwt")
	require.NoError(t, err)
	assert.Equal(t, "me", claims.Identity())
}
