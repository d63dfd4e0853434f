package models

// SessionType distinguishes text chat sessions from image-generation sessions.
type SessionType string

const (
	SessionText  SessionType = "text"
	SessionImage SessionType = "image"
)

// Roles of AI conversation turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AiSession represents a persistent assistant conversation.
type AiSession struct {
	ID          string      `json:"_id"`
	Title       string      `json:"title"`
	SessionType SessionType `json:"sessionType"`
	Messages    []AiMessage `json:"messages"`
	// IsUpdateTitle is set once the title was derived from the first prompt.
	IsUpdateTitle bool `json:"isUpdateTitle"`
}

func (s *AiSession) TargetID() string { return s.ID }
func (s *AiSession) Kind() TargetKind { return KindAI }
func (s *AiSession) CloneTarget() Target { return s.Clone() }

// Clone returns a deep copy.
func (s *AiSession) Clone() *AiSession {
	cp := *s
	cp.Messages = append([]AiMessage(nil), s.Messages...)
	return &cp
}

// AiMessage is a single turn within an AI session.
type AiMessage struct {
	Role        string      `json:"role"`
	Content     string      `json:"content,omitempty"`
	ImageURL    string      `json:"imageUrl,omitempty"`
	MessageType MessageType `json:"messageType,omitempty"`
}
