package chat

import "github.com/zhouzirui/chargate/internal/service/upstream"

// Reply is one character message as seen by callers. Text is the full
// reply accumulated so far, not a delta.
type Reply struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

// ReplyFromTurn flattens an upstream turn to its primary candidate.
func ReplyFromTurn(turn *upstream.Turn) Reply {
	if turn == nil {
		return Reply{}
	}
	return Reply{Author: turn.AuthorName, Text: turn.Text()}
}
