package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/chargate/internal/model/chat"
	"github.com/zhouzirui/chargate/internal/service/upstream"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionGone     = errors.New("session has been closed")
	ErrNoResponse      = errors.New("no response received from character")
)

// closedStreamMessage is the in-band error sent when upstream closed the session.
const closedStreamMessage = "Session closed"

const maxIDAttempts = 8

// EventSink receives a streamed reply. Exactly one of Done or Fail ends
// the stream.
type EventSink interface {
	Send(reply chat.Reply) error
	Done() error
	Fail(message string) error
}

// Options configures a Service.
type Options struct {
	// Token is the process-wide upstream credential.
	Token string
	// DefaultCharacterID is used when a caller omits the character.
	DefaultCharacterID string
}

// Service manages session lifecycle and relays messages to upstream.
type Service struct {
	transport upstream.Transport
	store     Store
	opts      Options
	newID     func() string

	shutdownOnce sync.Once
}

// NewService wires a transport and a session store.
func NewService(transport upstream.Transport, store Store, opts Options) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Service{
		transport: transport,
		store:     store,
		opts:      opts,
		newID:     newSessionID,
	}
}

// DefaultCharacterID returns the character used when none is requested.
func (s *Service) DefaultCharacterID() string {
	return s.opts.DefaultCharacterID
}

// OpenSession connects upstream, starts a chat and registers a new session.
func (s *Service) OpenSession(ctx context.Context, characterID string) (chat.Opened, error) {
	if characterID == "" {
		characterID = s.opts.DefaultCharacterID
	}

	client, err := s.transport.Connect(ctx, s.opts.Token)
	if err != nil {
		return chat.Opened{}, fmt.Errorf("failed to create session: %w", err)
	}

	me, err := client.FetchMe(ctx)
	if err != nil {
		release(client)
		return chat.Opened{}, fmt.Errorf("failed to create session: %w", err)
	}

	conversation, greeting, err := client.CreateChat(ctx, characterID)
	if err != nil {
		release(client)
		return chat.Opened{}, fmt.Errorf("failed to create session: %w", err)
	}

	session := chat.Session{
		ChatID:      conversation.ChatID,
		CharacterID: characterID,
		Username:    me.Name,
		CreatedAt:   time.Now().UTC(),
		Client:      client,
		Chat:        conversation,
	}
	if err := s.register(&session); err != nil {
		release(client)
		return chat.Opened{}, fmt.Errorf("failed to create session: %w", err)
	}

	log.Printf("[session] opened session=%s character=%s chat=%s", session.ID, characterID, session.ChatID)

	reply := chat.ReplyFromTurn(greeting)
	return chat.Opened{
		SessionID:      session.ID,
		ChatID:         session.ChatID,
		CharacterID:    characterID,
		Username:       me.Name,
		Greeting:       reply.Text,
		GreetingAuthor: reply.Author,
	}, nil
}

func (s *Service) register(session *chat.Session) error {
	var err error
	for i := 0; i < maxIDAttempts; i++ {
		session.ID = s.newID()
		err = s.store.Put(*session)
		if !errors.Is(err, ErrDuplicateSessionID) {
			return err
		}
	}
	return err
}

// ListSessions returns every open session.
func (s *Service) ListSessions() []chat.SessionInfo {
	sessions := s.store.List()
	out := make([]chat.SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, session.Info())
	}
	return out
}

// CloseSession removes a session and releases its connection. Release
// failures are ignored.
func (s *Service) CloseSession(_ context.Context, sessionID string) error {
	session, ok := s.store.Remove(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	release(session.Client)
	log.Printf("[session] closed session=%s", sessionID)
	return nil
}

// Shutdown releases every session and empties the store. Only the first
// call has any effect.
func (s *Service) Shutdown() {
	s.shutdownOnce.Do(func() {
		sessions := s.store.Clear()
		for _, session := range sessions {
			release(session.Client)
		}
		log.Printf("[session] released %d sessions on shutdown", len(sessions))
	})
}

// SendMessage relays text and returns the last turn upstream produced.
func (s *Service) SendMessage(ctx context.Context, sessionID, text string) (chat.Reply, error) {
	session, ok := s.store.Get(sessionID)
	if !ok {
		return chat.Reply{}, ErrSessionNotFound
	}

	stream, err := session.Client.SendMessage(ctx, session.CharacterID, session.ChatID, text)
	if err != nil {
		return chat.Reply{}, s.upstreamFailure(sessionID, err)
	}
	defer stream.Close()

	var last *upstream.Turn
	for {
		turn, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return chat.Reply{}, s.upstreamFailure(sessionID, err)
		}
		if turn != nil {
			last = turn
		}
	}

	if last == nil {
		return chat.Reply{}, ErrNoResponse
	}
	return chat.ReplyFromTurn(last), nil
}

// StreamMessage relays text and forwards every upstream turn to sink in
// arrival order. It returns ErrSessionNotFound without touching sink when
// the session is unknown. Afterwards all failures go to sink.Fail. If ctx
// ends first the relay stops quietly and the session stays open, unless
// upstream reported it closed at the same time.
func (s *Service) StreamMessage(ctx context.Context, sessionID, text string, sink EventSink) error {
	session, ok := s.store.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	stream, err := session.Client.SendMessage(ctx, session.CharacterID, session.ChatID, text)
	if err != nil {
		return s.failStream(sessionID, err, sink)
	}
	defer stream.Close()

	for {
		turn, err := stream.Recv()
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(err, upstream.ErrSessionClosed) {
				s.evict(sessionID)
			}
			log.Printf("[stream] caller left session=%s", sessionID)
			return ctxErr
		}
		if errors.Is(err, io.EOF) {
			return sink.Done()
		}
		if err != nil {
			return s.failStream(sessionID, err, sink)
		}
		if turn == nil {
			continue
		}
		if err := sink.Send(chat.ReplyFromTurn(turn)); err != nil {
			return err
		}
	}
}

func (s *Service) failStream(sessionID string, err error, sink EventSink) error {
	if errors.Is(err, upstream.ErrSessionClosed) {
		s.evict(sessionID)
		return sink.Fail(closedStreamMessage)
	}
	log.Printf("[stream] upstream error session=%s: %v", sessionID, err)
	return sink.Fail(err.Error())
}

// upstreamFailure classifies an error from the transport.
func (s *Service) upstreamFailure(sessionID string, err error) error {
	if errors.Is(err, upstream.ErrSessionClosed) {
		s.evict(sessionID)
		return ErrSessionGone
	}
	return fmt.Errorf("failed to send message: %w", err)
}

func (s *Service) evict(sessionID string) {
	session, ok := s.store.Remove(sessionID)
	if !ok {
		return
	}
	release(session.Client)
	log.Printf("[session] upstream closed session=%s", sessionID)
}

// release closes an upstream client. Errors here are expected and ignored.
func release(client upstream.Client) {
	if client == nil {
		return
	}
	_ = client.Close()
}

func newSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
