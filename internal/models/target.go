package models

// TargetKind identifies which kind of conversation is open.
type TargetKind string

const (
	KindContact TargetKind = "contact"
	KindChannel TargetKind = "channel"
	KindAI      TargetKind = "chatbot"
)

// Target is the conversation currently viewed: a contact, a channel or an AI
// session. Implementations are *Contact, *Channel and *AiSession.
type Target interface {
	TargetID() string
	Kind() TargetKind
	// CloneTarget returns a deep copy so holders never alias roster entries.
	CloneTarget() Target
}

// Contact is a direct-message peer.
type Contact struct {
	User
	// IDUser is the originating user on addDirectContact pushes.
	IDUser string `json:"idUser,omitempty"`
}

func (c *Contact) TargetID() string { return c.ID }
func (c *Contact) Kind() TargetKind { return KindContact }
func (c *Contact) CloneTarget() Target { return c.Clone() }

// Clone returns a deep copy.
func (c *Contact) Clone() *Contact {
	cp := *c
	cp.BlockedUsers = append([]string(nil), c.BlockedUsers...)
	return &cp
}

// Channel is a group conversation.
type Channel struct {
	ID      string  `json:"_id"`
	Name    string  `json:"name"`
	Admin   UserRef `json:"admin"`
	Members []User  `json:"members"`
	Image   string  `json:"image,omitempty"`
}

func (c *Channel) TargetID() string { return c.ID }
func (c *Channel) Kind() TargetKind { return KindChannel }
func (c *Channel) CloneTarget() Target { return c.Clone() }

// Clone returns a deep copy.
func (c *Channel) Clone() *Channel {
	cp := *c
	cp.Members = append([]User(nil), c.Members...)
	if c.Admin.User != nil {
		admin := *c.Admin.User
		cp.Admin.User = &admin
	}
	return &cp
}

// HasMember reports whether id is in the member list.
func (c *Channel) HasMember(id string) bool {
	for _, m := range c.Members {
		if m.ID == id {
			return true
		}
	}
	return false
}
