package characterai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/chargate/internal/config"
	"github.com/zhouzirui/chargate/internal/service/upstream"
)

const writeTimeout = 10 * time.Second

// Transport 负责建立 Character.AI 连接
type Transport struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// NewTransport 根据配置创建 Transport
func NewTransport(cfg config.CharacterAIConfig) *Transport {
	return &Transport{
		baseURL:    cfg.BaseURL,
		wsURL:      cfg.WSURL,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout()},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 30 * time.Second,
		},
	}
}

// Connect 使用 token 建立对话 WebSocket 连接
func (t *Transport) Connect(ctx context.Context, token string) (upstream.Client, error) {
	// 对话接口通过 Cookie 认证
	header := http.Header{}
	header.Set("Cookie", fmt.Sprintf(`HTTP_AUTHORIZATION="Token %s"`, token))

	conn, resp, err := t.dialer.DialContext(ctx, t.wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	c := &Client{
		token:      token,
		baseURL:    t.baseURL,
		httpClient: t.httpClient,
		conn:       conn,
		pending:    make(map[string]*subscription),
		done:       make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

type subscription struct {
	frames chan inboundFrame
	gone   chan struct{}
}

// Client 对应一条已认证的 WebSocket 连接，按 request_id 将回包分发给调用方
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	conn       *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]*subscription
	account *upstream.Account

	done      chan struct{}
	closeOnce sync.Once
}

// FetchMe 获取 token 对应的账号信息，结果会被缓存
func (c *Client) FetchMe(ctx context.Context) (upstream.Account, error) {
	c.mu.Lock()
	if c.account != nil {
		account := *c.account
		c.mu.Unlock()
		return account, nil
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/chat/user/", nil)
	if err != nil {
		return upstream.Account{}, fmt.Errorf("build account request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return upstream.Account{}, fmt.Errorf("fetch account: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return upstream.Account{}, fmt.Errorf("fetch account: unexpected status %d", resp.StatusCode)
	}

	var body accountResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return upstream.Account{}, fmt.Errorf("decode account: %w", err)
	}

	account := upstream.Account{
		ID:   strconv.FormatInt(body.User.User.ID, 10),
		Name: body.User.Name,
	}
	if account.Name == "" {
		account.Name = body.User.User.Username
	}

	c.mu.Lock()
	c.account = &account
	c.mu.Unlock()
	return account, nil
}

// CreateChat 创建单聊会话并等待角色的开场白
func (c *Client) CreateChat(ctx context.Context, characterID string) (upstream.Chat, *upstream.Turn, error) {
	me, err := c.FetchMe(ctx)
	if err != nil {
		return upstream.Chat{}, nil, err
	}

	payload := createChatPayload{
		Chat: wireChat{
			ChatID:      uuid.NewString(),
			CreatorID:   me.ID,
			Visibility:  "VISIBILITY_PRIVATE",
			CharacterID: characterID,
			Type:        "TYPE_ONE_ON_ONE",
		},
		WithGreeting: true,
	}

	sub, err := c.request(cmdCreateChat, payload)
	if err != nil {
		return upstream.Chat{}, nil, err
	}
	defer c.unsubscribe(sub)

	var chat *upstream.Chat
	for {
		frame, err := c.next(ctx, sub)
		if err != nil {
			return upstream.Chat{}, nil, err
		}

		switch frame.Command {
		case cmdCreateChatResponse:
			if frame.Chat == nil {
				return upstream.Chat{}, nil, fmt.Errorf("create chat: response without chat")
			}
			chat = &upstream.Chat{ChatID: frame.Chat.ChatID, CharacterID: frame.Chat.CharacterID}
			if chat.CharacterID == "" {
				chat.CharacterID = characterID
			}
		case cmdAddTurn:
			if chat == nil || frame.Turn == nil {
				continue
			}
			return *chat, frame.Turn.toTurn(), nil
		case cmdError:
			return upstream.Chat{}, nil, fmt.Errorf("create chat: %s", frame.Comment)
		}
	}
}

// SendMessage 发送用户消息并以流的形式返回角色回复
func (c *Client) SendMessage(ctx context.Context, characterID, chatID, text string) (*schema.StreamReader[*upstream.Turn], error) {
	me, err := c.FetchMe(ctx)
	if err != nil {
		return nil, err
	}

	candidateID := uuid.NewString()
	payload := generateTurnPayload{
		CharacterID:   characterID,
		NumCandidates: 1,
		Turn: wireTurn{
			TurnKey:            wireTurnKey{ChatID: chatID, TurnID: uuid.NewString()},
			Author:             wireAuthor{AuthorID: me.ID, IsHuman: true},
			Candidates:         []wireCandidate{{CandidateID: candidateID, RawContent: text}},
			PrimaryCandidateID: candidateID,
		},
	}

	sub, err := c.request(cmdGenerateTurn, payload)
	if err != nil {
		return nil, err
	}

	sr, sw := schema.Pipe[*upstream.Turn](4)
	go func() {
		defer sw.Close()
		defer c.unsubscribe(sub)

		for {
			frame, err := c.next(ctx, sub)
			if err != nil {
				// 调用方已取消时无人读取，直接退出
				if ctx.Err() == nil {
					sw.Send(nil, err)
				}
				return
			}

			switch frame.Command {
			case cmdAddTurn, cmdUpdateTurn:
				// 跳过服务端回显的用户消息
				if frame.Turn == nil || frame.Turn.Author.IsHuman {
					continue
				}
				turn := frame.Turn.toTurn()
				if closed := sw.Send(turn, nil); closed {
					return
				}
				// 主候选标记为 final 即回复结束
				if turn.PrimaryCandidate().IsFinal {
					return
				}
			case cmdError:
				sw.Send(nil, fmt.Errorf("generate turn: %s", frame.Comment))
				return
			}
		}
	}()

	return sr, nil
}

// Close 关闭连接，只有首次调用会返回错误
func (c *Client) Close() error {
	return c.shutdown()
}

func (c *Client) shutdown() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// request 注册订阅并发送请求帧
func (c *Client) request(command string, payload interface{}) (*subscription, error) {
	if c.closed() {
		return nil, fmt.Errorf("%s: %w", command, upstream.ErrSessionClosed)
	}

	frame := outboundFrame{
		Command:   command,
		RequestID: uuid.NewString(),
		Payload:   payload,
		OriginID:  originID,
	}
	sub := &subscription{
		frames: make(chan inboundFrame, 16),
		gone:   make(chan struct{}),
	}

	c.mu.Lock()
	c.pending[frame.RequestID] = sub
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := c.conn.WriteJSON(frame)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, frame.RequestID)
		c.mu.Unlock()
		close(sub.gone)
		_ = c.shutdown()
		return nil, fmt.Errorf("%s: %v: %w", command, err, upstream.ErrSessionClosed)
	}

	return sub, nil
}

func (c *Client) unsubscribe(sub *subscription) {
	c.mu.Lock()
	for id, s := range c.pending {
		if s == sub {
			delete(c.pending, id)
			break
		}
	}
	c.mu.Unlock()
	close(sub.gone)
}

// next 等待订阅的下一帧，连接关闭前已收到的帧优先返回
func (c *Client) next(ctx context.Context, sub *subscription) (inboundFrame, error) {
	select {
	case frame := <-sub.frames:
		return frame, nil
	case <-ctx.Done():
		return inboundFrame{}, ctx.Err()
	case <-c.done:
		select {
		case frame := <-sub.frames:
			return frame, nil
		default:
		}
		return inboundFrame{}, upstream.ErrSessionClosed
	}
}

func (c *Client) readLoop() {
	defer func() { _ = c.shutdown() }()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed() {
				log.Printf("[characterai] websocket closed: %v", err)
			}
			return
		}

		// 单个非法帧不影响整条连接
		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("[characterai] skipping malformed frame: %v", err)
			continue
		}

		c.mu.Lock()
		sub, ok := c.pending[frame.RequestID]
		c.mu.Unlock()
		// 没有等待方的帧直接丢弃
		if !ok {
			continue
		}

		select {
		case sub.frames <- frame:
		case <-sub.gone:
		case <-c.done:
			return
		}
	}
}
