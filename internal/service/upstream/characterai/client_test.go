package characterai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/chargate/internal/config"
	"github.com/zhouzirui/chargate/internal/service/upstream"
)

const testToken = "secret"

type rawFrame struct {
	Command   string          `json:"command"`
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload"`
	OriginID  string          `json:"origin_id"`
}

// fakeServer imitates the account API and the chat websocket.
type fakeServer struct {
	srv *httptest.Server

	chunks       []string
	errorComment string
	// dropAfter closes the socket after that many reply frames; negative disables.
	dropAfter int

	accountHits atomic.Int32

	mu      sync.Mutex
	cookie  string
	inbound []rawFrame
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		chunks:    []string{"Hello", "Hello, friend", "Hello, friend."},
		dropAfter: -1,
	}

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/user/", func(w http.ResponseWriter, r *http.Request) {
		fs.accountHits.Add(1)
		if r.Header.Get("Authorization") != "Token "+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"user":{"user":{"id":42,"username":"neo_user"},"name":"Neo"}}`)
	})
	mux.HandleFunc("/ws/", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.cookie = r.Header.Get("Cookie")
		fs.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		fs.serve(conn)
	})

	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) transport() *Transport {
	return NewTransport(config.CharacterAIConfig{
		BaseURL:            fs.srv.URL,
		WSURL:              "ws" + strings.TrimPrefix(fs.srv.URL, "http") + "/ws/",
		HTTPTimeoutSeconds: 5,
	})
}

func (fs *fakeServer) serve(conn *websocket.Conn) {
	for {
		var frame rawFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		fs.mu.Lock()
		fs.inbound = append(fs.inbound, frame)
		fs.mu.Unlock()

		switch frame.Command {
		case cmdCreateChat:
			var payload createChatPayload
			_ = json.Unmarshal(frame.Payload, &payload)
			_ = conn.WriteJSON(inboundFrame{Command: cmdCreateChatResponse, RequestID: frame.RequestID, Chat: &wireChat{
				ChatID:      payload.Chat.ChatID,
				CharacterID: payload.Chat.CharacterID,
			}})
			_ = conn.WriteJSON(inboundFrame{Command: cmdAddTurn, RequestID: frame.RequestID, Turn: &wireTurn{
				TurnKey:            wireTurnKey{ChatID: payload.Chat.ChatID, TurnID: "greet"},
				Author:             wireAuthor{AuthorID: payload.Chat.CharacterID, Name: "Socrates"},
				Candidates:         []wireCandidate{{CandidateID: "g", RawContent: "Welcome, friend.", IsFinal: true}},
				PrimaryCandidateID: "g",
			}})
		case cmdGenerateTurn:
			var payload generateTurnPayload
			_ = json.Unmarshal(frame.Payload, &payload)

			// the human turn is echoed back first
			_ = conn.WriteJSON(inboundFrame{Command: cmdAddTurn, RequestID: frame.RequestID, Turn: &payload.Turn})

			// unrelated traffic for another request must be ignored
			_ = conn.WriteJSON(inboundFrame{Command: cmdUpdateTurn, RequestID: "other", Turn: &wireTurn{
				Author:     wireAuthor{Name: "Intruder"},
				Candidates: []wireCandidate{{CandidateID: "x", RawContent: "nope", IsFinal: true}},
			}})

			if fs.errorComment != "" {
				_ = conn.WriteJSON(inboundFrame{Command: cmdError, RequestID: frame.RequestID, Comment: fs.errorComment})
				continue
			}

			for i, chunk := range fs.chunks {
				if fs.dropAfter >= 0 && i == fs.dropAfter {
					return
				}
				command := cmdUpdateTurn
				if i == 0 {
					command = cmdAddTurn
				}
				_ = conn.WriteJSON(inboundFrame{Command: command, RequestID: frame.RequestID, Turn: &wireTurn{
					TurnKey:            wireTurnKey{ChatID: payload.Turn.TurnKey.ChatID, TurnID: "reply"},
					Author:             wireAuthor{AuthorID: payload.CharacterID, Name: "Socrates"},
					Candidates:         []wireCandidate{{CandidateID: "r", RawContent: chunk, IsFinal: i == len(fs.chunks)-1}},
					PrimaryCandidateID: "r",
				}})
			}
		}
	}
}

func connect(t *testing.T, fs *fakeServer) upstream.Client {
	t.Helper()
	client, err := fs.transport().Connect(context.Background(), testToken)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func drain(t *testing.T, client upstream.Client) ([]*upstream.Turn, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.SendMessage(ctx, "char-1", "chat-1", "hi there")
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var turns []*upstream.Turn
	for {
		turn, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return turns, nil
		}
		if err != nil {
			return turns, err
		}
		turns = append(turns, turn)
	}
}

func TestConnectSendsTokenCookie(t *testing.T) {
	fs := newFakeServer(t)
	connect(t, fs)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Equal(t, `HTTP_AUTHORIZATION="Token secret"`, fs.cookie)
}

func TestConnectFailure(t *testing.T) {
	tr := NewTransport(config.CharacterAIConfig{WSURL: "ws://127.0.0.1:1/ws/", HTTPTimeoutSeconds: 1})

	_, err := tr.Connect(context.Background(), testToken)
	assert.Error(t, err)
}

func TestFetchMeIsCached(t *testing.T) {
	fs := newFakeServer(t)
	client := connect(t, fs)

	for i := 0; i < 2; i++ {
		account, err := client.FetchMe(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Neo", account.Name)
		assert.Equal(t, "42", account.ID)
	}
	assert.Equal(t, int32(1), fs.accountHits.Load())
}

func TestFetchMeRejectedToken(t *testing.T) {
	fs := newFakeServer(t)
	client, err := fs.transport().Connect(context.Background(), "wrong")
	require.NoError(t, err)
	defer client.Close()

	_, err = client.FetchMe(context.Background())
	assert.ErrorContains(t, err, "unexpected status 401")
}

func TestCreateChatReturnsGreeting(t *testing.T) {
	fs := newFakeServer(t)
	client := connect(t, fs)

	chat, greeting, err := client.CreateChat(context.Background(), "char-1")
	require.NoError(t, err)

	assert.NotEmpty(t, chat.ChatID)
	assert.Equal(t, "char-1", chat.CharacterID)
	assert.Equal(t, "Socrates", greeting.AuthorName)
	assert.Equal(t, "Welcome, friend.", greeting.Text())

	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.Len(t, fs.inbound, 1)
	assert.Equal(t, originID, fs.inbound[0].OriginID)

	var payload createChatPayload
	require.NoError(t, json.Unmarshal(fs.inbound[0].Payload, &payload))
	assert.Equal(t, "42", payload.Chat.CreatorID)
	assert.True(t, payload.WithGreeting)
}

func TestSendMessageStreamsCumulativeTurns(t *testing.T) {
	fs := newFakeServer(t)
	client := connect(t, fs)

	turns, err := drain(t, client)
	require.NoError(t, err)

	require.Len(t, turns, 3)
	assert.Equal(t, "Hello", turns[0].Text())
	assert.Equal(t, "Hello, friend", turns[1].Text())
	assert.Equal(t, "Hello, friend.", turns[2].Text())
	assert.True(t, turns[2].PrimaryCandidate().IsFinal)
	for _, turn := range turns {
		assert.Equal(t, "Socrates", turn.AuthorName)
		assert.False(t, turn.IsHuman)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	var payload generateTurnPayload
	require.NoError(t, json.Unmarshal(fs.inbound[0].Payload, &payload))
	assert.Equal(t, "char-1", payload.CharacterID)
	assert.Equal(t, "chat-1", payload.Turn.TurnKey.ChatID)
	assert.Equal(t, "hi there", payload.Turn.Candidates[0].RawContent)
	assert.True(t, payload.Turn.Author.IsHuman)
}

func TestSendMessageUpstreamError(t *testing.T) {
	fs := newFakeServer(t)
	fs.errorComment = "character not found"
	client := connect(t, fs)

	turns, err := drain(t, client)
	assert.Empty(t, turns)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "character not found")
	assert.False(t, errors.Is(err, upstream.ErrSessionClosed))
}

func TestSendMessageConnectionDropped(t *testing.T) {
	fs := newFakeServer(t)
	fs.dropAfter = 1
	client := connect(t, fs)

	turns, err := drain(t, client)
	assert.Len(t, turns, 1)
	assert.ErrorIs(t, err, upstream.ErrSessionClosed)

	_, err = client.SendMessage(context.Background(), "char-1", "chat-1", "again")
	assert.ErrorIs(t, err, upstream.ErrSessionClosed)
}

func TestCloseIsIdempotent(t *testing.T) {
	fs := newFakeServer(t)
	client, err := fs.transport().Connect(context.Background(), testToken)
	require.NoError(t, err)

	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())

	_, err = client.SendMessage(context.Background(), "char-1", "chat-1", "hello")
	assert.ErrorIs(t, err, upstream.ErrSessionClosed)
}
