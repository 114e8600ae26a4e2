package chat

import (
	"time"

	"github.com/zhouzirui/chargate/internal/service/upstream"
)

// Session binds a caller-visible id to one upstream connection and chat.
// Fields never change after creation.
type Session struct {
	ID          string
	ChatID      string
	CharacterID string
	Username    string
	CreatedAt   time.Time

	Client upstream.Client
	Chat   upstream.Chat
}

// Info returns the public view of the session.
func (s Session) Info() SessionInfo {
	return SessionInfo{
		SessionID:   s.ID,
		ChatID:      s.ChatID,
		CharacterID: s.CharacterID,
		Username:    s.Username,
	}
}

// SessionInfo is the listing entry exposed over HTTP.
type SessionInfo struct {
	SessionID   string `json:"session_id"`
	ChatID      string `json:"chat_id"`
	CharacterID string `json:"character_id"`
	Username    string `json:"username"`
}

// Opened is returned when a session is created.
type Opened struct {
	SessionID      string `json:"session_id"`
	ChatID         string `json:"chat_id"`
	CharacterID    string `json:"character_id"`
	Username       string `json:"username"`
	Greeting       string `json:"greeting"`
	GreetingAuthor string `json:"greeting_author"`
}
