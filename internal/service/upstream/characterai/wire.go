package characterai

import "github.com/zhouzirui/chargate/internal/service/upstream"

// 对话协议中使用的命令
const (
	originID = "web-next"

	cmdCreateChat         = "create_chat"
	cmdCreateChatResponse = "create_chat_response"
	cmdGenerateTurn       = "create_and_generate_turn"
	cmdAddTurn            = "add_turn"
	cmdUpdateTurn         = "update_turn"
	cmdError              = "neo_error"
)

// outboundFrame 客户端发出的请求帧
type outboundFrame struct {
	Command   string      `json:"command"`
	RequestID string      `json:"request_id"`
	Payload   interface{} `json:"payload"`
	OriginID  string      `json:"origin_id"`
}

// inboundFrame 服务端推送的帧，按 request_id 对应请求
type inboundFrame struct {
	Command   string    `json:"command"`
	RequestID string    `json:"request_id"`
	Turn      *wireTurn `json:"turn,omitempty"`
	Chat      *wireChat `json:"chat,omitempty"`
	Comment   string    `json:"comment,omitempty"`
}

type wireChat struct {
	ChatID      string `json:"chat_id"`
	CreatorID   string `json:"creator_id,omitempty"`
	Visibility  string `json:"visibility,omitempty"`
	CharacterID string `json:"character_id"`
	Type        string `json:"type,omitempty"`
}

type wireTurnKey struct {
	ChatID string `json:"chat_id"`
	TurnID string `json:"turn_id"`
}

type wireAuthor struct {
	AuthorID string `json:"author_id"`
	Name     string `json:"name"`
	IsHuman  bool   `json:"is_human,omitempty"`
}

type wireCandidate struct {
	CandidateID string `json:"candidate_id"`
	RawContent  string `json:"raw_content"`
	IsFinal     bool   `json:"is_final,omitempty"`
}

type wireTurn struct {
	TurnKey            wireTurnKey     `json:"turn_key"`
	Author             wireAuthor      `json:"author"`
	Candidates         []wireCandidate `json:"candidates"`
	PrimaryCandidateID string          `json:"primary_candidate_id"`
}

func (t *wireTurn) toTurn() *upstream.Turn {
	turn := &upstream.Turn{
		TurnID:             t.TurnKey.TurnID,
		AuthorName:         t.Author.Name,
		IsHuman:            t.Author.IsHuman,
		PrimaryCandidateID: t.PrimaryCandidateID,
		Candidates:         make([]upstream.Candidate, 0, len(t.Candidates)),
	}
	for _, c := range t.Candidates {
		turn.Candidates = append(turn.Candidates, upstream.Candidate{
			ID:      c.CandidateID,
			Text:    c.RawContent,
			IsFinal: c.IsFinal,
		})
	}
	return turn
}

type createChatPayload struct {
	Chat         wireChat `json:"chat"`
	WithGreeting bool     `json:"with_greeting"`
}

type generateTurnPayload struct {
	CharacterID      string   `json:"character_id"`
	NumCandidates    int      `json:"num_candidates"`
	SelectedLanguage string   `json:"selected_language"`
	TTSEnabled       bool     `json:"tts_enabled"`
	Turn             wireTurn `json:"turn"`
	UserName         string   `json:"user_name"`
}

type accountResponse struct {
	User struct {
		User struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
		Name string `json:"name"`
	} `json:"user"`
}
