package ws

import (
	"encoding/json"
	"strconv"

	"github.com/suPer8Hu/gopherchat/internal/chat"
)

// Envelope is the tagged inbound frame. Field usage differs slightly
// between routes: direct chat declares username/receiver strings, the
// group route carries sender as a verified id.
type Envelope struct {
	Type     string            `json:"type"`
	Message  string            `json:"message"`
	Username string            `json:"username"`
	Receiver string            `json:"receiver"`
	Sender   string            `json:"sender"`
	FileData *chat.FilePayload `json:"file_data"`
	IsTyping bool              `json:"is_typing"`
}

const (
	kindText   = "text"
	kindFile   = "file"
	kindTyping = "typing"
	kindRead   = "read"

	// Presence route connection markers.
	kindOpen  = "open"
	kindClose = "close"
)

// parseEnvelope validates an inbound payload. ok=false means the frame
// is dropped silently per the protocol-error policy. Group clients
// historically omit the type tag on plain text sends.
func parseEnvelope(raw []byte) (Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, false
	}
	if env.Type == "" && env.Message != "" {
		env.Type = kindText
	}
	switch env.Type {
	case kindText:
		if env.Message == "" {
			return Envelope{}, false
		}
	case kindFile:
		if env.FileData == nil || env.FileData.Filename == "" {
			return Envelope{}, false
		}
	case kindTyping, kindRead, kindOpen, kindClose:
	default:
		return Envelope{}, false
	}
	return env, true
}

func (e Envelope) senderID() (uint64, bool) {
	if e.Sender == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(e.Sender, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
