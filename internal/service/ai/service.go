package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/zhouzirui/chargate/internal/config"
	"github.com/zhouzirui/chargate/internal/model/persona"
	"github.com/zhouzirui/chargate/internal/service/upstream"
)

const historyLimit = 10

// Service plays personas locally with a chat model. It implements
// upstream.Transport.
type Service struct {
	personas persona.Store
	username string
	prompts  *PersonaPromptManager
	chain    compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the local backend from the Ark configuration.
func NewService(ctx context.Context, personas persona.Store, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, personas, chatModel, cfg.Username)
}

// NewServiceWithModel creates the local backend around an existing model.
func NewServiceWithModel(ctx context.Context, personas persona.Store, chatModel model.ChatModel, username string) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		personas: personas,
		username: username,
		prompts:  NewPersonaPromptManager(),
		chain:    runnable,
	}, nil
}

// Connect opens a local connection. The token is not used; the chat model
// carries its own credentials.
func (s *Service) Connect(_ context.Context, _ string) (upstream.Client, error) {
	return &localClient{
		svc:   s,
		chats: make(map[string]*conversation),
	}, nil
}

func (s *Service) buildChainInput(p *persona.Persona, history []*schema.Message, userMessage string) map[string]any {
	return map[string]any{
		"system":  s.prompts.BuildSystemPrompt(p),
		"history": history,
		"query":   userMessage,
	}
}

type conversation struct {
	persona persona.Persona
	history []*schema.Message
}

// localClient keeps the chats of one session.
type localClient struct {
	svc *Service

	mu     sync.Mutex
	closed bool
	chats  map[string]*conversation
}

func (c *localClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *localClient) FetchMe(_ context.Context) (upstream.Account, error) {
	if c.isClosed() {
		return upstream.Account{}, upstream.ErrSessionClosed
	}
	return upstream.Account{ID: "local", Name: c.svc.username}, nil
}

func (c *localClient) CreateChat(_ context.Context, characterID string) (upstream.Chat, *upstream.Turn, error) {
	p, ok := c.svc.personas.FindByID(characterID)
	if !ok {
		return upstream.Chat{}, nil, fmt.Errorf("character %s not found", characterID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return upstream.Chat{}, nil, upstream.ErrSessionClosed
	}

	chat := upstream.Chat{ChatID: uuid.NewString(), CharacterID: characterID}
	conv := &conversation{persona: p}
	if p.OpeningLine != "" {
		conv.history = append(conv.history, schema.AssistantMessage(p.OpeningLine, nil))
	}
	c.chats[chat.ChatID] = conv

	greeting := &upstream.Turn{
		TurnID:             uuid.NewString(),
		AuthorName:         p.Name,
		Candidates:         []upstream.Candidate{{ID: "greeting", Text: p.OpeningLine, IsFinal: true}},
		PrimaryCandidateID: "greeting",
	}
	return chat, greeting, nil
}

func (c *localClient) SendMessage(ctx context.Context, _, chatID, text string) (*schema.StreamReader[*upstream.Turn], error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, upstream.ErrSessionClosed
	}
	conv, ok := c.chats[chatID]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("chat %s not found", chatID)
	}
	p := conv.persona
	history := append([]*schema.Message(nil), conv.history...)
	c.mu.Unlock()

	stream, err := c.svc.chain.Stream(ctx, c.svc.buildChainInput(&p, history, text))
	if err != nil {
		return nil, fmt.Errorf("failed to stream AI chain output: %w", err)
	}

	sr, sw := schema.Pipe[*upstream.Turn](4)
	go func() {
		defer sw.Close()
		defer stream.Close()

		turnID := uuid.NewString()
		chunks := make([]*schema.Message, 0, 8)
		var builder strings.Builder

		for {
			chunk, recvErr := stream.Recv()
			if errors.Is(recvErr, io.EOF) {
				break
			}
			if recvErr != nil {
				sw.Send(nil, recvErr)
				return
			}
			if c.isClosed() {
				sw.Send(nil, upstream.ErrSessionClosed)
				return
			}
			if chunk == nil || chunk.Content == "" {
				continue
			}

			chunks = append(chunks, chunk)
			builder.WriteString(chunk.Content)
			turn := &upstream.Turn{
				TurnID:             turnID,
				AuthorName:         p.Name,
				Candidates:         []upstream.Candidate{{ID: turnID, Text: builder.String()}},
				PrimaryCandidateID: turnID,
			}
			if closed := sw.Send(turn, nil); closed {
				return
			}
		}

		if len(chunks) == 0 {
			return
		}
		reply, err := schema.ConcatMessages(chunks)
		if err != nil {
			log.Printf("[ai] failed to concat reply for chat=%s: %v", chatID, err)
			return
		}
		c.remember(chatID, schema.UserMessage(text), schema.AssistantMessage(reply.Content, nil))
		log.Printf("[ai] generated reply for chat=%s, persona=%s, length=%d", chatID, p.ID, len(reply.Content))
	}()

	return sr, nil
}

// remember appends messages to a chat, keeping the last historyLimit.
func (c *localClient) remember(chatID string, messages ...*schema.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv, ok := c.chats[chatID]
	if !ok {
		return
	}
	conv.history = append(conv.history, messages...)
	if len(conv.history) > historyLimit {
		conv.history = append([]*schema.Message(nil), conv.history[len(conv.history)-historyLimit:]...)
	}
}

func (c *localClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.chats = make(map[string]*conversation)
	return nil
}
