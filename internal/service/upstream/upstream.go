package upstream

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/schema"
)

// ErrSessionClosed is returned once the underlying connection is gone.
var ErrSessionClosed = errors.New("upstream session closed")

// Transport acquires chat connections for a credential.
type Transport interface {
	Connect(ctx context.Context, token string) (Client, error)
}

// Client is one connection to the chat backend. A Client is owned by
// exactly one session.
type Client interface {
	// FetchMe returns the account that owns the connection.
	FetchMe(ctx context.Context) (Account, error)
	// CreateChat starts a conversation with a character and returns the
	// character's greeting turn.
	CreateChat(ctx context.Context, characterID string) (Chat, *Turn, error)
	// SendMessage posts text to a chat. Each turn received from the
	// returned reader carries the full reply accumulated so far; the
	// reader yields io.EOF once the reply is complete.
	SendMessage(ctx context.Context, characterID, chatID, text string) (*schema.StreamReader[*Turn], error)
	// Close releases the connection. It is safe to call more than once.
	Close() error
}

// Account describes the authenticated user of a connection.
type Account struct {
	ID   string
	Name string
}

// Chat identifies a conversation on the backend.
type Chat struct {
	ChatID      string
	CharacterID string
}

// Candidate is one alternative response text of a turn.
type Candidate struct {
	ID      string
	Text    string
	IsFinal bool
}

// Turn is one message event in a chat.
type Turn struct {
	TurnID             string
	AuthorName         string
	IsHuman            bool
	Candidates         []Candidate
	PrimaryCandidateID string
}

// PrimaryCandidate returns the candidate selected as the turn's response.
func (t *Turn) PrimaryCandidate() Candidate {
	if t == nil || len(t.Candidates) == 0 {
		return Candidate{}
	}
	for _, c := range t.Candidates {
		if c.ID == t.PrimaryCandidateID {
			return c
		}
	}
	return t.Candidates[0]
}

// Text is shorthand for the primary candidate's text.
func (t *Turn) Text() string {
	return t.PrimaryCandidate().Text
}
