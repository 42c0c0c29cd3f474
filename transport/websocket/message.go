package websocket

import (
	"encoding/json"

	"github.com/rocketscienceinc/palermo-backend/internal/apperror"
	"github.com/rocketscienceinc/palermo-backend/internal/entity"
)

const (
	actionSessionUpdate = "session:update"
	actionSessionClosed = "session:closed"

	actionGameStart   = "game:start"
	actionGameAction  = "game:action"
	actionGameVote    = "game:vote"
	actionGameAdvance = "game:advance"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ActionPayload struct {
	Kind        entity.ActionKind `json:"kind"`
	TargetID    string            `json:"target_id"`
	PhaseNumber int               `json:"phase_number"`
}

type ResponsePayload struct {
	OK      bool            `json:"ok"`
	Error   apperror.Reason `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

func newMessage(action string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{Action: action, Payload: raw}, nil
}
