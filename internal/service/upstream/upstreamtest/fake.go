// Package upstreamtest provides a scripted in-memory upstream transport for tests.
package upstreamtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/zhouzirui/chargate/internal/service/upstream"
)

// Reply scripts the turns produced for one SendMessage call.
type Reply struct {
	Author string
	// Chunks are appended one by one; every emitted turn carries the
	// concatenation so far.
	Chunks []string
	// Err, when set, is delivered after the chunks.
	Err error
	// SendErr fails the SendMessage call itself.
	SendErr error
	// Hold, when set, keeps the stream open after the chunks until it is
	// closed or the reader goes away.
	Hold chan struct{}
	// CancelErr, when set, is delivered if the reader's context ends
	// while the stream is held.
	CancelErr error
}

// Transport hands out fake clients that follow the configured script.
type Transport struct {
	Username       string
	GreetingAuthor string
	GreetingText   string

	ConnectErr error
	FetchErr   error
	CreateErr  error
	CloseErr   error

	// Reply is used by every SendMessage call unless Replies has entries,
	// in which case they are consumed in order.
	Reply   Reply
	Replies []Reply

	mu      sync.Mutex
	clients []*Client
	tokens  []string
}

// New returns a transport with a friendly default script.
func New() *Transport {
	return &Transport{
		Username:       "tester",
		GreetingAuthor: "Socrates",
		GreetingText:   "Sit down, friend.",
		Reply: Reply{
			Author: "Socrates",
			Chunks: []string{"What ", "is ", "virtue?"},
		},
	}
}

// Connect implements upstream.Transport.
func (t *Transport) Connect(_ context.Context, token string) (upstream.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tokens = append(t.tokens, token)
	if t.ConnectErr != nil {
		return nil, t.ConnectErr
	}

	client := &Client{transport: t}
	t.clients = append(t.clients, client)
	return client, nil
}

// Clients returns every client handed out so far.
func (t *Transport) Clients() []*Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Client(nil), t.clients...)
}

// Tokens returns the credentials passed to Connect.
func (t *Transport) Tokens() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.tokens...)
}

func (t *Transport) nextReply() Reply {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.Replies) == 0 {
		return t.Reply
	}
	reply := t.Replies[0]
	t.Replies = t.Replies[1:]
	return reply
}

// Client is a fake upstream.Client.
type Client struct {
	transport *Transport

	mu         sync.Mutex
	closed     bool
	closeCalls int
	sent       []string
}

// FetchMe implements upstream.Client.
func (c *Client) FetchMe(_ context.Context) (upstream.Account, error) {
	if c.transport.FetchErr != nil {
		return upstream.Account{}, c.transport.FetchErr
	}
	return upstream.Account{ID: "1", Name: c.transport.Username}, nil
}

// CreateChat implements upstream.Client.
func (c *Client) CreateChat(_ context.Context, characterID string) (upstream.Chat, *upstream.Turn, error) {
	if c.transport.CreateErr != nil {
		return upstream.Chat{}, nil, c.transport.CreateErr
	}

	chat := upstream.Chat{ChatID: uuid.NewString(), CharacterID: characterID}
	greeting := &upstream.Turn{
		TurnID:             uuid.NewString(),
		AuthorName:         c.transport.GreetingAuthor,
		Candidates:         []upstream.Candidate{{ID: "g", Text: c.transport.GreetingText, IsFinal: true}},
		PrimaryCandidateID: "g",
	}
	return chat, greeting, nil
}

// SendMessage implements upstream.Client.
func (c *Client) SendMessage(ctx context.Context, _, _, text string) (*schema.StreamReader[*upstream.Turn], error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("send message: %w", upstream.ErrSessionClosed)
	}
	c.sent = append(c.sent, text)
	c.mu.Unlock()

	reply := c.transport.nextReply()
	if reply.SendErr != nil {
		return nil, reply.SendErr
	}

	sr, sw := schema.Pipe[*upstream.Turn](0)
	go func() {
		defer sw.Close()

		var builder strings.Builder
		for i, chunk := range reply.Chunks {
			builder.WriteString(chunk)
			turn := &upstream.Turn{
				TurnID:             "reply",
				AuthorName:         reply.Author,
				Candidates:         []upstream.Candidate{{ID: "c", Text: builder.String(), IsFinal: i == len(reply.Chunks)-1}},
				PrimaryCandidateID: "c",
			}
			if closed := sw.Send(turn, nil); closed {
				return
			}
		}

		if reply.Hold != nil {
			select {
			case <-reply.Hold:
			case <-ctx.Done():
				if reply.CancelErr != nil {
					sw.Send(nil, reply.CancelErr)
				}
				return
			}
		}

		if reply.Err != nil {
			sw.Send(nil, reply.Err)
		}
	}()

	return sr, nil
}

// Close implements upstream.Client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeCalls++
	return c.transport.CloseErr
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseCalls returns how many times Close was called.
func (c *Client) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// Sent returns the messages passed to SendMessage.
func (c *Client) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}
