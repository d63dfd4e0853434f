package models

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCallDuration(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want string
	}{
		{"zero", 0, "00:00"},
		{"seconds", 7 * time.Second, "00:07"},
		{"minute boundary", 60 * time.Second, "01:00"},
		{"mixed", 3*time.Minute + 25*time.Second, "03:25"},
		{"sub-second truncated", 1500 * time.Millisecond, "00:01"},
		{"past an hour", 61*time.Minute + time.Second, "61:01"},
		{"negative clamps", -time.Second, "00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCallDuration(tt.in))
		})
	}
}

func TestUserRefUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantID   string
		wantUser bool
	}{
		{"bare id", `"u1"`, "u1", false},
		{"object", `{"_id":"u2","firstName":"Ana"}`, "u2", true},
		{"null", `null`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ref UserRef
			require.NoError(t, json.Unmarshal([]byte(tt.in), &ref))
			assert.Equal(t, tt.wantID, ref.ID)
			assert.Equal(t, tt.wantUser, ref.User != nil)
		})
	}

	var ref UserRef
	assert.Error(t, json.Unmarshal([]byte(`42`), &ref))
}

func TestDirectMessageDecodesBothSenderForms(t *testing.T) {
	raw := `{"_id":"m1","sender":{"_id":"a","email":"a@x"},"recipient":"b","messageType":"text","content":"hi"}`

	var msg DirectMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, "a", msg.Sender.ID)
	require.NotNil(t, msg.Sender.User)
	assert.Equal(t, "a@x", msg.Sender.User.Email)
	assert.Equal(t, "b", msg.Recipient.ID)
	assert.True(t, msg.Involves("b"))
	assert.False(t, msg.Involves("c"))
	assert.False(t, msg.Involves(""))
}

func TestCallUserPayloadOffer(t *testing.T) {
	var p CallUserPayload
	require.NoError(t, json.Unmarshal([]byte(`{"signal":{"type":"offer"},"from":{"_id":"a"}}`), &p))
	assert.JSONEq(t, `{"type":"offer"}`, string(p.Offer()))

	var legacy CallUserPayload
	require.NoError(t, json.Unmarshal([]byte(`{"signalData":{"type":"offer","sdp":"x"},"from":{"_id":"a"}}`), &legacy))
	assert.JSONEq(t, `{"type":"offer","sdp":"x"}`, string(legacy.Offer()))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ana Lima", User{FirstName: "Ana", LastName: "Lima"}.DisplayName())
	assert.Equal(t, "a@x", User{Email: "a@x"}.DisplayName())
}
