package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rocketscienceinc/palermo-backend/internal/apperror"
)

type errorResponse struct {
	Error   apperror.Reason `json:"error"`
	Message string          `json:"message"`
}

func statusFor(reason apperror.Reason) int {
	switch reason {
	case apperror.ReasonSessionNotFound:
		return http.StatusNotFound
	case apperror.ReasonNotHost:
		return http.StatusForbidden
	case apperror.ReasonInvalidRequest:
		return http.StatusBadRequest
	case apperror.ReasonInvalidPhase,
		apperror.ReasonAlreadyStarted,
		apperror.ReasonTerminal,
		apperror.ReasonTooFewPlayers,
		apperror.ReasonRoomFull,
		apperror.ReasonDuplicateAction:
		return http.StatusConflict
	case apperror.ReasonDeadPlayer,
		apperror.ReasonDeadTarget,
		apperror.ReasonSelfTarget,
		apperror.ReasonRoleMismatch,
		apperror.ReasonNoSuchTarget,
		apperror.ReasonUnknownAction:
		return http.StatusUnprocessableEntity
	case apperror.ReasonStoreConflict:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if body == nil {
		return
	}

	_ = json.NewEncoder(w).Encode(body)
}

// writeError hides internal failures behind a generic message and logs them.
func writeError(log *slog.Logger, w http.ResponseWriter, err error) {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal server error"})
		return
	}

	writeJSON(w, statusFor(appErr.Reason), errorResponse{Error: appErr.Reason, Message: appErr.Message})
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ErrInvalidRequest.WithMessage("malformed request body")
	}

	return nil
}
