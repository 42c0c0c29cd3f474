package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rocketscienceinc/palermo-backend/internal/apperror"
	"github.com/rocketscienceinc/palermo-backend/internal/entity"
	"github.com/rocketscienceinc/palermo-backend/internal/mafia"
	"github.com/rocketscienceinc/palermo-backend/internal/pkg"
)

const (
	defaultMaxRetries = 5

	retryInitialInterval = 10 * time.Millisecond
	retryMaxInterval     = 200 * time.Millisecond
)

type sessionRepo interface {
	Create(ctx context.Context, session *entity.Session) error
	GetByID(ctx context.Context, id string) (*entity.Session, error)
	GetByRoomCode(ctx context.Context, code string) (*entity.Session, error)
	Update(ctx context.Context, id string, mutate func(*entity.Session) error) (*entity.Session, error)
	AddAction(ctx context.Context, id string, action entity.Action, check func(*entity.Session, *entity.Action) error) (*entity.Session, error)
	Delete(ctx context.Context, id string) error
	Lock(ctx context.Context, id string) (func(context.Context) error, error)
}

type archiveRepo interface {
	Save(ctx context.Context, record *entity.GameRecord) error
}

type Option func(*GameManager)

// WithShuffle replaces the random role shuffle, mostly for tests.
func WithShuffle(shuffle func([]entity.RoleID)) Option {
	return func(that *GameManager) {
		that.shuffle = shuffle
	}
}

func WithMaxRetries(n uint64) Option {
	return func(that *GameManager) {
		that.maxRetries = n
	}
}

// GameManager coordinates the rules against the shared store. It keeps no session state
// between calls, so any number of instances may serve the same session.
type GameManager struct {
	logger *slog.Logger

	sessionRepo sessionRepo
	archiveRepo archiveRepo

	shuffle    func([]entity.RoleID)
	maxRetries uint64
}

// NewGameManager - archive may be nil, in which case finished games are not recorded.
func NewGameManager(logger *slog.Logger, sessionRepo sessionRepo, archiveRepo archiveRepo, opts ...Option) *GameManager {
	manager := &GameManager{
		logger: logger,

		sessionRepo: sessionRepo,
		archiveRepo: archiveRepo,

		shuffle:    shuffleRoles,
		maxRetries: defaultMaxRetries,
	}

	for _, opt := range opts {
		opt(manager)
	}

	return manager
}

func (that *GameManager) CreateSession(ctx context.Context, hostID, hostName string) (*entity.Session, error) {
	log := that.logger.With("method", "CreateSession", "hostID", hostID)

	if hostID == "" {
		return nil, apperror.ErrInvalidRequest.WithMessage("player id is required")
	}

	var session *entity.Session
	err := that.withRetry(ctx, func() error {
		code, err := pkg.GenerateRoomCode()
		if err != nil {
			return err
		}

		session = entity.NewSession(pkg.GenerateSessionID(), code, entity.NewPlayer(hostID, hostName))

		return that.sessionRepo.Create(ctx, session)
	})
	if err != nil {
		log.Error("failed to create session", "error", err)
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Info("session created", "sessionID", session.ID, "roomCode", session.RoomCode)

	return session, nil
}

func (that *GameManager) JoinSession(ctx context.Context, roomCode, playerID, name string) (*entity.Session, error) {
	log := that.logger.With("method", "JoinSession", "roomCode", roomCode, "playerID", playerID)

	if playerID == "" {
		return nil, apperror.ErrInvalidRequest.WithMessage("player id is required")
	}

	existing, err := that.sessionRepo.GetByRoomCode(ctx, roomCode)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	var session *entity.Session
	err = that.withRetry(ctx, func() error {
		session, err = that.sessionRepo.Update(ctx, existing.ID, func(s *entity.Session) error {
			return s.AddPlayer(entity.NewPlayer(playerID, name))
		})
		return err
	})
	if err != nil {
		log.Info("join rejected", "error", err)
		return nil, fmt.Errorf("failed to join session: %w", err)
	}

	log.Info("player joined", "sessionID", session.ID, "players", len(session.Players))

	return session, nil
}

// LeaveSession removes a player from the lobby. The last player out deletes the session.
func (that *GameManager) LeaveSession(ctx context.Context, sessionID, playerID string) error {
	log := that.logger.With("method", "LeaveSession", "sessionID", sessionID, "playerID", playerID)

	var empty bool
	err := that.withRetry(ctx, func() error {
		_, err := that.sessionRepo.Update(ctx, sessionID, func(s *entity.Session) error {
			var removeErr error
			empty, removeErr = s.RemovePlayer(playerID)
			return removeErr
		})
		return err
	})
	if err != nil {
		log.Info("leave rejected", "error", err)
		return fmt.Errorf("failed to leave session: %w", err)
	}

	if empty {
		if err = that.sessionRepo.Delete(ctx, sessionID); err != nil && !errors.Is(err, apperror.ErrSessionNotFound) {
			log.Error("failed to delete empty session", "error", err)
			return fmt.Errorf("failed to delete session: %w", err)
		}
		log.Info("empty session deleted")
	}

	return nil
}

func (that *GameManager) StartGame(ctx context.Context, sessionID, hostID string) error {
	log := that.logger.With("method", "StartGame", "sessionID", sessionID)

	session, err := that.serialized(ctx, sessionID, func(s *entity.Session) error {
		if !s.IsHost(hostID) {
			return apperror.ErrNotHost
		}

		if !s.IsLobby() {
			return apperror.ErrAlreadyStarted
		}

		return that.assignRoles(s)
	})
	if err != nil {
		log.Info("start rejected", "error", err)
		return fmt.Errorf("failed to start game: %w", err)
	}

	log.Info("game started", "players", len(session.Players), "phase", session.CurrentPhase)

	return nil
}

// SubmitAction accepts one night action or vote. A zero phase number means the current phase.
func (that *GameManager) SubmitAction(ctx context.Context, sessionID string, action entity.Action) error {
	log := that.logger.With("method", "SubmitAction", "sessionID", sessionID, "playerID", action.SourceID, "kind", action.Kind)

	err := that.withRetry(ctx, func() error {
		_, err := that.sessionRepo.AddAction(ctx, sessionID, action, func(s *entity.Session, stamped *entity.Action) error {
			if stamped.PhaseNumber == 0 {
				stamped.PhaseNumber = s.CurrentPhase
			}
			return checkAction(s, *stamped)
		})

		return err
	})
	if err != nil {
		log.Info("action rejected", "error", err)
		return fmt.Errorf("failed to submit action: %w", err)
	}

	log.Info("action accepted")

	return nil
}

func (that *GameManager) SubmitVote(ctx context.Context, sessionID, voterID, targetID string) error {
	return that.SubmitAction(ctx, sessionID, entity.Action{
		Kind:     entity.ActionVote,
		SourceID: voterID,
		TargetID: targetID,
	})
}

// AdvancePhase moves the session to its next state, resolving the night or the vote on the way.
func (that *GameManager) AdvancePhase(ctx context.Context, sessionID, callerID string) error {
	log := that.logger.With("method", "AdvancePhase", "sessionID", sessionID)

	var from entity.State
	session, err := that.serialized(ctx, sessionID, func(s *entity.Session) error {
		from = s.Status

		if !s.IsHost(callerID) {
			return apperror.ErrNotHost
		}

		if s.IsFinished() {
			return apperror.ErrTerminal
		}

		return that.transition(s)
	})
	if err != nil {
		log.Info("advance rejected", "error", err)
		return fmt.Errorf("failed to advance phase: %w", err)
	}

	log.Info("phase advanced", "from", from, "to", session.Status, "phase", session.CurrentPhase)

	if session.IsFinished() {
		that.archiveGame(ctx, session)
	}

	return nil
}

func (that *GameManager) CheckWinner(ctx context.Context, sessionID string) (entity.Team, bool, error) {
	session, err := that.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return "", false, fmt.Errorf("failed to get session: %w", err)
	}

	if session.WinningTeam != "" {
		return session.WinningTeam, true, nil
	}

	if session.IsLobby() {
		return "", false, nil
	}

	team, ok := mafia.EvaluateWinner(session.Players)

	return team, ok, nil
}

func (that *GameManager) GetSession(ctx context.Context, sessionID string) (*entity.Session, error) {
	session, err := that.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

func (that *GameManager) GetSessionView(ctx context.Context, sessionID, viewerID string) (*entity.SessionView, error) {
	session, err := that.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return session.ViewFor(viewerID), nil
}

// GetInvestigations is the private read path of an investigator's results.
func (that *GameManager) GetInvestigations(ctx context.Context, sessionID, playerID string) ([]entity.Investigation, error) {
	session, err := that.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return session.InvestigationsBy(playerID), nil
}

// transition applies one step of the state machine. A winner found while resolving
// overrides the nominal successor with GameOver.
func (that *GameManager) transition(s *entity.Session) error {
	switch next := s.Status.Next(); next {
	case entity.StateRoleAssignment:
		return that.assignRoles(s)
	case entity.StateNight:
		s.CurrentPhase++
		s.Status = entity.StateNight
	case entity.StateNightResults:
		result, ok := s.Result(entity.NamespaceNight, s.CurrentPhase)
		if !ok {
			result = mafia.ResolveNight(s.CurrentPhase, s.ActionsFor(entity.NamespaceNight, s.CurrentPhase), s.Players)
			s.SetResult(entity.NamespaceNight, result)
		}
		applyResult(s, result)
	case entity.StateExecutionResult:
		result, ok := s.Result(entity.NamespaceDay, s.CurrentPhase)
		if !ok {
			result = mafia.ResolveExecution(s.CurrentPhase, s.ActionsFor(entity.NamespaceDay, s.CurrentPhase), s.Players)
			s.SetResult(entity.NamespaceDay, result)
		}
		applyResult(s, result)
	default:
		s.Status = next
	}

	return nil
}

func (that *GameManager) assignRoles(s *entity.Session) error {
	if len(s.Players) < entity.MinPlayers {
		return apperror.ErrTooFewPlayers
	}

	roles := entity.RolesForPlayerCount(len(s.Players))
	that.shuffle(roles)

	s.AssignRoles(roles)
	s.Status = entity.StateNight
	s.CurrentPhase = 1

	return nil
}

func applyResult(s *entity.Session, result *entity.PhaseResult) {
	if result.EliminatedPlayerID != "" {
		s.Eliminate(result.EliminatedPlayerID)
	}

	if result.HasWinner() {
		s.WinningTeam = result.WinningTeam
		s.Status = entity.StateGameOver
		return
	}

	s.Status = result.State
}

func checkAction(s *entity.Session, action entity.Action) error {
	if s.IsFinished() {
		return apperror.ErrTerminal
	}

	if !action.Kind.IsValid() {
		return apperror.ErrUnknownAction
	}

	if !s.Status.AcceptsAction(action.Kind) || action.PhaseNumber != s.CurrentPhase {
		return apperror.ErrInvalidPhase
	}

	return mafia.ValidateAction(action, s.Players, s.PhaseActions(action.Namespace(), action.PhaseNumber))
}

// serialized runs mutate under the per-session lock so only one transition is in flight.
func (that *GameManager) serialized(
	ctx context.Context,
	sessionID string,
	mutate func(*entity.Session) error,
) (*entity.Session, error) {
	log := that.logger.With("method", "serialized", "sessionID", sessionID)

	var session *entity.Session
	err := that.withRetry(ctx, func() error {
		unlock, err := that.sessionRepo.Lock(ctx, sessionID)
		if err != nil {
			return err
		}

		defer func() {
			if unlockErr := unlock(context.WithoutCancel(ctx)); unlockErr != nil {
				log.Error("failed to release session lock", "error", unlockErr)
			}
		}()

		session, err = that.sessionRepo.Update(ctx, sessionID, mutate)

		return err
	})

	return session, err
}

// withRetry re-runs op while the store reports a conflict. Every other error is final.
func (that *GameManager) withRetry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxInterval = retryMaxInterval

	return backoff.Retry(func() error {
		err := op()
		if err == nil || errors.Is(err, apperror.ErrStoreConflict) {
			return err
		}

		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, that.maxRetries), ctx))
}

func (that *GameManager) archiveGame(ctx context.Context, session *entity.Session) {
	if that.archiveRepo == nil {
		return
	}

	log := that.logger.With("method", "archiveGame", "sessionID", session.ID)

	if err := that.archiveRepo.Save(ctx, session.Record(time.Now().UTC())); err != nil {
		log.Error("failed to archive game", "error", err)
		return
	}

	log.Info("game archived", "winner", session.WinningTeam)
}

func shuffleRoles(roles []entity.RoleID) {
	rand.Shuffle(len(roles), func(i, j int) {
		roles[i], roles[j] = roles[j], roles[i]
	})
}
