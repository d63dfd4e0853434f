package models

import (
	"fmt"
	"time"
)

// FormatCallDuration renders a call length as zero-padded mm:ss.
// Minutes keep growing past 59 rather than rolling into hours.
func FormatCallDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// MessageKey returns a stable key for a message: its server id, or a
// composite of type and timestamp when the id is not yet assigned.
func MessageKey(m Message) string {
	if id := m.MessageID(); id != "" {
		return id
	}
	return fmt.Sprintf("%s@%d", m.Type(), m.SentAt().UnixNano())
}
