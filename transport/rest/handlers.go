package rest

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rocketscienceinc/palermo-backend/internal/apperror"
	"github.com/rocketscienceinc/palermo-backend/internal/entity"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type playerRequest struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
}

type joinRequest struct {
	RoomCode string `json:"room_code"`
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
}

type actionRequest struct {
	PlayerID    string            `json:"player_id"`
	Kind        entity.ActionKind `json:"kind"`
	TargetID    string            `json:"target_id"`
	PhaseNumber int               `json:"phase_number"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	RoomCode  string `json:"room_code"`
}

type winnerResponse struct {
	Decided     bool        `json:"decided"`
	WinningTeam entity.Team `json:"winning_team,omitempty"`
}

func (that *Server) createSession(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "createSession")

	var req playerRequest
	if err := decode(r, &req); err != nil {
		writeError(log, w, err)
		return
	}

	session, err := that.game.CreateSession(r.Context(), req.PlayerID, req.Name)
	if err != nil {
		writeError(log, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: session.ID, RoomCode: session.RoomCode})
}

func (that *Server) joinSession(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "joinSession")

	var req joinRequest
	if err := decode(r, &req); err != nil {
		writeError(log, w, err)
		return
	}

	session, err := that.game.JoinSession(r.Context(), req.RoomCode, req.PlayerID, req.Name)
	if err != nil {
		writeError(log, w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{SessionID: session.ID, RoomCode: session.RoomCode})
}

func (that *Server) leaveSession(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "leaveSession")

	var req playerRequest
	if err := decode(r, &req); err != nil {
		writeError(log, w, err)
		return
	}

	if err := that.game.LeaveSession(r.Context(), chi.URLParam(r, "sessionID"), req.PlayerID); err != nil {
		writeError(log, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (that *Server) startGame(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "startGame")

	var req playerRequest
	if err := decode(r, &req); err != nil {
		writeError(log, w, err)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if err := that.game.StartGame(r.Context(), sessionID, req.PlayerID); err != nil {
		writeError(log, w, err)
		return
	}

	that.writeView(w, r, sessionID, req.PlayerID)
}

func (that *Server) submitAction(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "submitAction")

	var req actionRequest
	if err := decode(r, &req); err != nil {
		writeError(log, w, err)
		return
	}

	err := that.game.SubmitAction(r.Context(), chi.URLParam(r, "sessionID"), entity.Action{
		Kind:        req.Kind,
		SourceID:    req.PlayerID,
		TargetID:    req.TargetID,
		PhaseNumber: req.PhaseNumber,
	})
	if err != nil {
		writeError(log, w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (that *Server) submitVote(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "submitVote")

	var req actionRequest
	if err := decode(r, &req); err != nil {
		writeError(log, w, err)
		return
	}

	if err := that.game.SubmitVote(r.Context(), chi.URLParam(r, "sessionID"), req.PlayerID, req.TargetID); err != nil {
		writeError(log, w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (that *Server) advancePhase(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "advancePhase")

	var req playerRequest
	if err := decode(r, &req); err != nil {
		writeError(log, w, err)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if err := that.game.AdvancePhase(r.Context(), sessionID, req.PlayerID); err != nil {
		writeError(log, w, err)
		return
	}

	that.writeView(w, r, sessionID, req.PlayerID)
}

func (that *Server) getSession(w http.ResponseWriter, r *http.Request) {
	that.writeView(w, r, chi.URLParam(r, "sessionID"), r.URL.Query().Get("player_id"))
}

func (that *Server) getWinner(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "getWinner")

	team, decided, err := that.game.CheckWinner(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(log, w, err)
		return
	}

	writeJSON(w, http.StatusOK, winnerResponse{Decided: decided, WinningTeam: team})
}

func (that *Server) getInvestigations(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "getInvestigations")

	investigations, err := that.game.GetInvestigations(r.Context(), chi.URLParam(r, "sessionID"), r.URL.Query().Get("player_id"))
	if err != nil {
		writeError(log, w, err)
		return
	}

	if investigations == nil {
		investigations = []entity.Investigation{}
	}

	writeJSON(w, http.StatusOK, investigations)
}

func (that *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "listHistory")

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(log, w, apperror.ErrInvalidRequest.WithMessage("limit must be a positive number"))
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}

	records := []*entity.GameRecord{}
	if that.history != nil {
		found, err := that.history.ListRecent(r.Context(), limit)
		if err != nil {
			writeError(log, w, err)
			return
		}
		if found != nil {
			records = found
		}
	}

	writeJSON(w, http.StatusOK, records)
}

func (that *Server) writeView(w http.ResponseWriter, r *http.Request, sessionID, viewerID string) {
	log := that.logger.With("method", "writeView", "sessionID", sessionID)

	view, err := that.game.GetSessionView(r.Context(), sessionID, viewerID)
	if err != nil {
		writeError(log, w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}
