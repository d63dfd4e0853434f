package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/chatsync-go/internal/metrics"
	"github.com/raphaelgruber/chatsync-go/internal/models"
)

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)

	_, err = New("://nope")
	assert.Error(t, err)
}

func TestLoginStoresCookie(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ana@example.com", body["email"])
		assert.Equal(t, "secret", body["password"])

		http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "tok-1", Path: "/"})
		writeJSON(w, http.StatusOK, map[string]any{
			"data":         map[string]any{"_id": "u1", "email": "ana@example.com"},
			"profileSetup": true,
		})
	})
	mux.HandleFunc("GET /api/users/user-info", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie(CookieName)
		if err != nil || ck.Value != "tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"_id": "u1"}})
	})

	c := newTestClient(t, mux)
	ctx := context.Background()

	_, err := c.UserInfo(ctx)
	require.ErrorIs(t, err, ErrUnauthorized)

	res, err := c.Login(ctx, "ana@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u1", res.User.ID)
	assert.True(t, res.ProfileSetup)
	assert.Equal(t, "tok-1", c.Token())

	u, err := c.UserInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
}

func TestSetTokenSendsCookie(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/contacts/get-contacts-for-dm", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie(CookieName)
		require.NoError(t, err)
		assert.Equal(t, "abc", ck.Value)
		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{{"_id": "c1"}, {"_id": "c2"}}})
	})

	c := newTestClient(t, mux)
	c.SetToken("abc")

	contacts, err := c.DMContacts(context.Background())
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "c1", contacts[0].ID)
}

func TestHistoryEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/messages/get-messages-by-user", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bob", body["id"])
		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{
			{"_id": "m1", "sender": "me", "recipient": map[string]any{"_id": "bob"}, "messageType": "text", "content": "hi"},
		}})
	})
	mux.HandleFunc("GET /api/channel/get-channel-messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ch1", r.PathValue("id"))
		writeJSON(w, http.StatusOK, map[string]any{"messages": []map[string]any{
			{"_id": "m2", "sender": map[string]any{"_id": "bob"}, "channelId": "ch1", "messageType": "text"},
		}})
	})

	c := newTestClient(t, mux)
	ctx := context.Background()

	dms, err := c.DirectMessages(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, dms, 1)
	assert.Equal(t, "me", dms[0].Sender.ID)
	assert.Equal(t, "bob", dms[0].Recipient.ID)

	chs, err := c.ChannelMessages(ctx, "ch1")
	require.NoError(t, err)
	require.Len(t, chs, 1)
	assert.Equal(t, "bob", chs[0].Sender.ID)
}

func TestStatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{"unauthorized", http.StatusUnauthorized, "", func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrUnauthorized)
		}},
		{"not found", http.StatusNotFound, "", func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrNotFound)
		}},
		{"json message", http.StatusBadRequest, `{"message":"bad id"}`, func(t *testing.T, err error) {
			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, http.StatusBadRequest, se.Code)
			assert.Equal(t, "bad id", se.Message)
		}},
		{"plain body", http.StatusInternalServerError, "boom", func(t *testing.T, err error) {
			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "boom", se.Message)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			_, err := c.UserChannels(context.Background())
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestAiSessionEndpoints(t *testing.T) {
	var added []map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chatbot/get-sessions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{{"_id": "s1", "sessionType": "text"}}})
	})
	mux.HandleFunc("POST /api/chatbot/create-session", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "image", body["sessionType"])
		writeJSON(w, http.StatusCreated, map[string]any{"sessionChat": map[string]any{"_id": "s2", "title": body["title"], "sessionType": "image"}})
	})
	mux.HandleFunc("POST /api/chatbot/add-message-session", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		added = append(added, body)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/chatbot/delete-session", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "s2", body["sessionId"])
		w.WriteHeader(http.StatusOK)
	})

	c := newTestClient(t, mux)
	ctx := context.Background()

	sessions, err := c.AiSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, models.SessionText, sessions[0].SessionType)

	s, err := c.CreateAiSession(ctx, "Create new image", models.SessionImage)
	require.NoError(t, err)
	assert.Equal(t, "s2", s.ID)

	flag := false
	require.NoError(t, c.AddAiMessage(ctx, "s2", models.AiMessage{Role: models.RoleUser, Content: "a cat"}, &flag))
	require.NoError(t, c.AddAiMessage(ctx, "s2", models.AiMessage{Role: models.RoleAssistant, ImageURL: "b64"}, nil))
	require.Len(t, added, 2)
	assert.Equal(t, false, added[0]["isUpdateTitle"])
	_, hasFlag := added[1]["isUpdateTitle"]
	assert.False(t, hasFlag)

	require.NoError(t, c.DeleteAiSession(ctx, "s2"))
}

func TestUploadFileReportsProgress(t *testing.T) {
	payload := strings.Repeat("x", 64*1024)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/messages/upload-file", func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, "notes.txt", hdr.Filename)
		assert.Equal(t, payload, string(data))
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"filePath": "uploads/files/notes.txt"}})
	})

	m := metrics.NewCollector()
	c := newTestClient(t, mux, WithMetrics(m))

	var seen []int
	path, err := c.UploadFile(context.Background(), "notes.txt", strings.NewReader(payload), func(p int) {
		seen = append(seen, p)
	})
	require.NoError(t, err)
	assert.Equal(t, "uploads/files/notes.txt", path)

	require.NotEmpty(t, seen)
	assert.Equal(t, 100, seen[len(seen)-1])
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1])
	}

	op, ok := m.Snapshot().Operation(metrics.OpUpload)
	require.True(t, ok)
	assert.Equal(t, int64(1), op.Count)
}

func TestDownloadResolvesRelativePaths(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /uploads/files/a.bin", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "5")
		_, _ = io.WriteString(w, "hello")
	})

	c := newTestClient(t, mux)

	var buf bytes.Buffer
	var last int
	n, err := c.Download(context.Background(), "uploads/files/a.bin", &buf, func(p int) { last = p })
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "hello", buf.String())
	assert.Equal(t, 100, last)

	_, err = c.Download(context.Background(), "uploads/missing", io.Discard, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
