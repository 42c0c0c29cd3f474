package websocket

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rocketscienceinc/palermo-backend/internal/apperror"
	"github.com/rocketscienceinc/palermo-backend/internal/entity"
)

// dispatch routes msg to its handler and always answers on the same action name.
func (that *Server) dispatch(ctx context.Context, client *connection, msg *Message) {
	log := that.logger.With("method", "dispatch", "sessionID", client.sessionID, "playerID", client.playerID, "action", msg.Action)

	handler, ok := that.handlers[msg.Action]
	if !ok {
		that.reply(ctx, client, msg.Action, apperror.ErrUnknownAction.WithMessage("unknown message action"))
		return
	}

	err := handler(ctx, client, msg)
	if err != nil {
		log.Info("request rejected", "error", err)
	}

	that.reply(ctx, client, msg.Action, err)
}

func (that *Server) reply(ctx context.Context, client *connection, action string, err error) {
	payload := ResponsePayload{OK: err == nil}

	if err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			payload.Error = appErr.Reason
			payload.Message = appErr.Message
		} else {
			that.logger.Error("request failed", "action", action, "error", err)
			payload.Error = "internal"
			payload.Message = "internal server error"
		}
	}

	msg, marshalErr := newMessage(action, payload)
	if marshalErr != nil {
		return
	}

	client.enqueue(ctx, msg)
}

func (that *Server) handleStart(ctx context.Context, client *connection, _ *Message) error {
	return that.game.StartGame(ctx, client.sessionID, client.playerID)
}

func (that *Server) handleAdvance(ctx context.Context, client *connection, _ *Message) error {
	return that.game.AdvancePhase(ctx, client.sessionID, client.playerID)
}

// handleAction submits a night action on behalf of the connected player.
func (that *Server) handleAction(ctx context.Context, client *connection, msg *Message) error {
	payload, err := parseAction(msg)
	if err != nil {
		return err
	}

	return that.game.SubmitAction(ctx, client.sessionID, entity.Action{
		Kind:        payload.Kind,
		SourceID:    client.playerID,
		TargetID:    payload.TargetID,
		PhaseNumber: payload.PhaseNumber,
	})
}

func (that *Server) handleVote(ctx context.Context, client *connection, msg *Message) error {
	payload, err := parseAction(msg)
	if err != nil {
		return err
	}

	return that.game.SubmitVote(ctx, client.sessionID, client.playerID, payload.TargetID)
}

func parseAction(msg *Message) (*ActionPayload, error) {
	var payload ActionPayload
	if len(msg.Payload) == 0 {
		return nil, apperror.ErrInvalidRequest.WithMessage("payload is required")
	}

	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, apperror.ErrInvalidRequest.WithMessage("malformed payload")
	}

	return &payload, nil
}
