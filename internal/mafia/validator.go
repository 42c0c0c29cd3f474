package mafia

import (
	"github.com/rocketscienceinc/palermo-backend/internal/apperror"
	"github.com/rocketscienceinc/palermo-backend/internal/entity"
)

// ValidateAction checks one submission against a snapshot of the roster and the slots
// already claimed in its phase. Checks short-circuit in a fixed order.
func ValidateAction(action entity.Action, players map[string]*entity.Player, submitted map[string]entity.Action) error {
	if !action.Kind.IsValid() {
		return apperror.ErrUnknownAction
	}

	source, ok := players[action.SourceID]
	if !ok || !source.Alive {
		return apperror.ErrDeadPlayer
	}

	if !entity.CanPerform(source.Role, action.Kind) {
		return apperror.ErrRoleMismatch
	}

	if action.SourceID == action.TargetID && !action.Kind.AllowsSelfTarget() {
		return apperror.ErrSelfTarget
	}

	target, ok := players[action.TargetID]
	if !ok {
		return apperror.ErrNoSuchTarget
	}

	if !target.Alive {
		return apperror.ErrDeadTarget
	}

	if _, ok = submitted[action.SourceID]; ok {
		return apperror.ErrDuplicateAction
	}

	return nil
}
