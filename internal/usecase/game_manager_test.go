package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/palermo-backend/internal/apperror"
	"github.com/rocketscienceinc/palermo-backend/internal/entity"
	"github.com/rocketscienceinc/palermo-backend/internal/repository"
)

type mockArchive struct {
	mock.Mock
}

func (that *mockArchive) Save(ctx context.Context, record *entity.GameRecord) error {
	args := that.Called(ctx, record)
	return args.Error(0)
}

// flakyRepo reports a conflict on the first failures calls to Update.
type flakyRepo struct {
	repository.SessionRepository
	failures atomic.Int32
}

func (that *flakyRepo) Update(
	ctx context.Context,
	id string,
	mutate func(*entity.Session) error,
) (*entity.Session, error) {
	if that.failures.Add(-1) >= 0 {
		return nil, apperror.ErrStoreConflict
	}
	return that.SessionRepository.Update(ctx, id, mutate)
}

// joinOnDeleteRepo lets a player join right before the empty session is deleted.
type joinOnDeleteRepo struct {
	repository.SessionRepository
	manager  *GameManager
	roomCode string
	joinErr  error
}

func (that *joinOnDeleteRepo) Delete(ctx context.Context, id string) error {
	_, that.joinErr = that.manager.JoinSession(ctx, that.roomCode, "late", "late")
	return that.SessionRepository.Delete(ctx, id)
}

// phaseShiftRepo moves the game to the next night right before the first action is claimed.
type phaseShiftRepo struct {
	repository.SessionRepository
	manager *GameManager
	once    sync.Once
}

func (that *phaseShiftRepo) AddAction(
	ctx context.Context,
	id string,
	action entity.Action,
	check func(*entity.Session, *entity.Action) error,
) (*entity.Session, error) {
	that.once.Do(func() {
		// night results, day discussion, voting, execution, next night
		for range 5 {
			_ = that.manager.AdvancePhase(ctx, id, "p1")
		}
	})
	return that.SessionRepository.AddAction(ctx, id, action, check)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixedRoles gives p1 Mafioso, p2 Ispettore and the rest Paesani.
func fixedRoles(roles []entity.RoleID) {
	order := []entity.RoleID{entity.RoleMafioso, entity.RoleIspettore}
	for i := range roles {
		if i < len(order) {
			roles[i] = order[i]
		} else {
			roles[i] = entity.RolePaesano
		}
	}
}

func newLobby(t *testing.T, manager *GameManager, players ...string) *entity.Session {
	t.Helper()
	ctx := context.Background()

	session, err := manager.CreateSession(ctx, players[0], "host")
	require.NoError(t, err)

	for _, id := range players[1:] {
		session, err = manager.JoinSession(ctx, session.RoomCode, id, id)
		require.NoError(t, err)
	}

	return session
}

func newStartedGame(t *testing.T, manager *GameManager) *entity.Session {
	t.Helper()

	session := newLobby(t, manager, "p1", "p2", "p3", "p4")
	require.NoError(t, manager.StartGame(context.Background(), session.ID, "p1"))

	return session
}

func advance(t *testing.T, manager *GameManager, sessionID string, times int) {
	t.Helper()

	for range times {
		require.NoError(t, manager.AdvancePhase(context.Background(), sessionID, "p1"))
	}
}

func TestGameManager_FullRound(t *testing.T) {
	ctx := context.Background()
	archive := &mockArchive{}
	manager := NewGameManager(discardLogger(), repository.NewMemorySessionRepository(), archive, WithShuffle(fixedRoles))

	// Given: P1 Mafioso, P2 Ispettore, P3 and P4 Paesani in the first night
	session := newStartedGame(t, manager)

	started, err := manager.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StateNight, started.Status)
	assert.Equal(t, 1, started.CurrentPhase)
	assert.Equal(t, entity.RoleMafioso, started.Players["p1"].Role)
	assert.Equal(t, entity.RoleIspettore, started.Players["p2"].Role)

	// When: the Mafioso kills P3 and the Ispettore investigates P1
	require.NoError(t, manager.SubmitAction(ctx, session.ID, entity.Action{Kind: entity.ActionKill, SourceID: "p1", TargetID: "p3"}))
	require.NoError(t, manager.SubmitAction(ctx, session.ID, entity.Action{Kind: entity.ActionInvestigate, SourceID: "p2", TargetID: "p1", PhaseNumber: 1}))
	advance(t, manager, session.ID, 1)

	// Then: P3 is dead and only P2 learns that P1 is Mafia
	resolved, err := manager.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StateNightResults, resolved.Status)
	assert.False(t, resolved.Players["p3"].Alive)

	result, ok := resolved.Result(entity.NamespaceNight, 1)
	require.True(t, ok)
	assert.Equal(t, "p3", result.EliminatedPlayerID)
	assert.Equal(t, entity.RolePaesano, result.EliminatedRole)

	investigations, err := manager.GetInvestigations(ctx, session.ID, "p2")
	require.NoError(t, err)
	assert.Equal(t, []entity.Investigation{{InvestigatorID: "p2", TargetID: "p1", IsMafia: true}}, investigations)

	others, err := manager.GetInvestigations(ctx, session.ID, "p4")
	require.NoError(t, err)
	assert.Empty(t, others)

	p2View, err := manager.GetSessionView(ctx, session.ID, "p2")
	require.NoError(t, err)
	require.Len(t, p2View.Results, 1)
	assert.NotNil(t, p2View.Results[0].Result.Investigation)

	p4View, err := manager.GetSessionView(ctx, session.ID, "p4")
	require.NoError(t, err)
	require.Len(t, p4View.Results, 1)
	assert.Nil(t, p4View.Results[0].Result.Investigation)

	// When: the day comes and the survivors split their votes
	advance(t, manager, session.ID, 2)
	require.NoError(t, manager.SubmitVote(ctx, session.ID, "p1", "p2"))
	require.NoError(t, manager.SubmitVote(ctx, session.ID, "p2", "p1"))
	advance(t, manager, session.ID, 1)

	// Then: nobody is executed and the game goes on
	afterVote, err := manager.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StateExecutionResult, afterVote.Status)

	execution, ok := afterVote.Result(entity.NamespaceDay, 1)
	require.True(t, ok)
	assert.Empty(t, execution.EliminatedPlayerID)
	assert.Equal(t, map[string]int{"p1": 1, "p2": 1}, execution.Votes)

	_, decided, err := manager.CheckWinner(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, decided)

	// When: the second night starts and the Mafioso kills the Ispettore
	advance(t, manager, session.ID, 1)
	night2, err := manager.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StateNight, night2.Status)
	assert.Equal(t, 2, night2.CurrentPhase)

	archive.On("Save", mock.Anything, mock.MatchedBy(func(record *entity.GameRecord) bool {
		return record.SessionID == session.ID && record.WinningTeam == entity.TeamMafia
	})).Return(nil).Once()

	require.NoError(t, manager.SubmitAction(ctx, session.ID, entity.Action{Kind: entity.ActionKill, SourceID: "p1", TargetID: "p2"}))
	advance(t, manager, session.ID, 1)

	// Then: the Mafia reaches parity and the game is over and archived
	over, err := manager.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StateGameOver, over.Status)
	assert.Equal(t, entity.TeamMafia, over.WinningTeam)

	team, decided, err := manager.CheckWinner(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, decided)
	assert.Equal(t, entity.TeamMafia, team)

	err = manager.AdvancePhase(ctx, session.ID, "p1")
	assert.ErrorIs(t, err, apperror.ErrTerminal)

	archive.AssertExpectations(t)
}

func TestGameManager_StartGame(t *testing.T) {
	ctx := context.Background()

	t.Run("Only the host can start", func(t *testing.T) {
		manager := NewGameManager(discardLogger(), repository.NewMemorySessionRepository(), nil)
		session := newLobby(t, manager, "p1", "p2", "p3", "p4")

		err := manager.StartGame(ctx, session.ID, "p2")

		assert.ErrorIs(t, err, apperror.ErrNotHost)
	})

	t.Run("Too few players", func(t *testing.T) {
		manager := NewGameManager(discardLogger(), repository.NewMemorySessionRepository(), nil)
		session := newLobby(t, manager, "p1", "p2", "p3")

		err := manager.StartGame(ctx, session.ID, "p1")

		assert.ErrorIs(t, err, apperror.ErrTooFewPlayers)

		stored, err := manager.GetSession(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StateLobby, stored.Status)
	})

	t.Run("Starting twice is rejected", func(t *testing.T) {
		manager := NewGameManager(discardLogger(), repository.NewMemorySessionRepository(), nil)
		session := newStartedGame(t, manager)

		err := manager.StartGame(ctx, session.ID, "p1")

		assert.ErrorIs(t, err, apperror.ErrAlreadyStarted)
	})

	t.Run("Every player gets a role from the distribution", func(t *testing.T) {
		manager := NewGameManager(discardLogger(), repository.NewMemorySessionRepository(), nil)
		session := newLobby(t, manager, "a", "b", "c", "d", "e", "f", "g")

		require.NoError(t, manager.StartGame(ctx, session.ID, "a"))

		stored, err := manager.GetSession(ctx, session.ID)
		require.NoError(t, err)

		var got []entity.RoleID
		for _, player := range stored.Players {
			assert.True(t, player.Alive)
			got = append(got, player.Role)
		}
		assert.ElementsMatch(t, entity.RolesForPlayerCount(7), got)
	})

	t.Run("Advancing the lobby assigns roles", func(t *testing.T) {
		manager := NewGameManager(discardLogger(), repository.NewMemorySessionRepository(), nil, WithShuffle(fixedRoles))
		session := newLobby(t, manager, "p1", "p2", "p3", "p4")

		require.NoError(t, manager.AdvancePhase(ctx, session.ID, "p1"))

		stored, err := manager.GetSession(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StateNight, stored.Status)
		assert.Equal(t, 1, stored.CurrentPhase)
		assert.Equal(t, entity.RoleMafioso, stored.Players["p1"].Role)
	})
}

func TestGameManager_SubmitAction(t *testing.T) {
	ctx := context.Background()

	t.Run("Second submission for the same slot is a duplicate", func(t *testing.T) {
		manager := NewGameManager(discardLogger(), repository.NewMemorySessionRepository(), nil, WithShuffle(fixedRoles))
		session := newStartedGame(t, manager)

		require.NoError(t, manager.SubmitAction(ctx, session.ID, entity.Action{Kind: entity.ActionKill, SourceID: "p1", TargetID: "p3"}))

		err := manager.SubmitAction(ctx, session.ID, entity.Action{Kind: entity.ActionKill, SourceID: "p1", TargetID: "p4"})

		assert.ErrorIs(t, err, apperror.ErrDuplicateAction)
	})

	t.Run("Concurrent submissions accept exactly one", func(t *testing.T) {
		manager := NewGameManager(discardLogger(), repository.NewMemorySessionRepository(), nil, WithShuffle(fixedRoles))
		session := newStartedGame(t, manager)

		const attempts = 20
		var (
			wg       sync.WaitGroup
			accepted atomic.Int32
		)
		for i := range attempts {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()

				target := "p3"
				if i%2 == 1 {
					target = "p4"
				}
				err := manager.SubmitAction(ctx, session.ID, entity.Action{Kind: entity.ActionKill, SourceID: "p1", TargetID: target})
				if err == nil {
					accepted.Add(1)
					return
				}
				assert.ErrorIs(t, err, apperror.ErrDuplicateAction)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), accepted.Load())
	})

	t.Run("Votes are rejected at night", func(t *testing.T) {
		manager := NewGameManager(discardLogger(), repository.NewMemorySessionRepository(), nil, WithShuffle(fixedRoles))
		session := newStartedGame(t, manager)

		err := manager.SubmitVote(ctx, session.ID, "p3", "p1")

		assert.ErrorIs(t, err, apperror.ErrInvalidPhase)
	})

	t.Run("Night actions are rejected during the day", func(t *testing.T) {
		manager := NewGameManager(discardLogger(), repository.NewMemorySessionRepository(), nil, WithShuffle(fixedRoles))
		session := newStartedGame(t, manager)
		advance(t, manager, session.ID, 3)

		err := manager.SubmitAction(ctx, session.ID, entity.Action{Kind: entity.ActionKill, SourceID: "p1", TargetID: "p3"})

		assert.ErrorIs(t, err, apperror.ErrInvalidPhase)
	})

	t.Run("Stale phase number is rejected", func(t *testing.T) {
		manager := NewGameManager(discardLogger(), repository.NewMemorySessionRepository(), nil, WithShuffle(fixedRoles))
		session := newStartedGame(t, manager)

		err := manager.SubmitAction(ctx, session.ID, entity.Action{Kind: entity.ActionKill, SourceID: "p1", TargetID: "p3", PhaseNumber: 7})

		assert.ErrorIs(t, err, apperror.ErrInvalidPhase)
	})

	t.Run("Zero phase means the phase the slot is claimed in", func(t *testing.T) {
		// Given: the game moves from night 1 to night 2 while the kill is in flight
		repo := &phaseShiftRepo{SessionRepository: repository.NewMemorySessionRepository()}
		manager := NewGameManager(discardLogger(), repo, nil, WithShuffle(fixedRoles))
		repo.manager = manager
		session := newStartedGame(t, manager)

		// When: the Mafioso submits without a phase number
		err := manager.SubmitAction(ctx, session.ID, entity.Action{Kind: entity.ActionKill, SourceID: "p1", TargetID: "p3"})

		// Then: the kill lands in night 2
		require.NoError(t, err)

		stored, err := manager.GetSession(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StateNight, stored.Status)
		assert.Equal(t, 2, stored.CurrentPhase)
		assert.True(t, stored.HasAction(entity.NamespaceNight, 2, "p1"))
		assert.False(t, stored.HasAction(entity.NamespaceNight, 1, "p1"))
	})

	t.Run("Validator rejections leave no trace", func(t *testing.T) {
		manager := NewGameManager(discardLogger(), repository.NewMemorySessionRepository(), nil, WithShuffle(fixedRoles))
		session := newStartedGame(t, manager)

		err := manager.SubmitAction(ctx, session.ID, entity.Action{Kind: entity.ActionKill, SourceID: "p3", TargetID: "p1"})
		assert.ErrorIs(t, err, apperror.ErrRoleMismatch)

		view, err := manager.GetSessionView(ctx, session.ID, "p3")
		require.NoError(t, err)
		assert.False(t, view.HasActed)
		assert.Equal(t, entity.Progress{Acted: 0, Expected: 2}, view.Progress)
	})
}

func TestGameManager_AdvancePhase(t *testing.T) {
	ctx := context.Background()

	t.Run("Only the host can advance", func(t *testing.T) {
		manager := NewGameManager(discardLogger(), repository.NewMemorySessionRepository(), nil, WithShuffle(fixedRoles))
		session := newStartedGame(t, manager)

		err := manager.AdvancePhase(ctx, session.ID, "p2")

		assert.ErrorIs(t, err, apperror.ErrNotHost)
	})

	t.Run("Executing the only Mafioso ends the game for the Citizens", func(t *testing.T) {
		manager := NewGameManager(discardLogger(), repository.NewMemorySessionRepository(), nil, WithShuffle(fixedRoles))
		session := newStartedGame(t, manager)
		advance(t, manager, session.ID, 3)

		require.NoError(t, manager.SubmitVote(ctx, session.ID, "p2", "p1"))
		require.NoError(t, manager.SubmitVote(ctx, session.ID, "p3", "p1"))
		require.NoError(t, manager.SubmitVote(ctx, session.ID, "p1", "p2"))
		advance(t, manager, session.ID, 1)

		stored, err := manager.GetSession(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StateGameOver, stored.Status)
		assert.Equal(t, entity.TeamCitizens, stored.WinningTeam)

		view, err := manager.GetSessionView(ctx, session.ID, "p4")
		require.NoError(t, err)
		for _, player := range view.Players {
			assert.NotEmpty(t, player.Role, "roles are public once the game is over")
		}
	})

	t.Run("Conflicts are retried", func(t *testing.T) {
		repo := &flakyRepo{SessionRepository: repository.NewMemorySessionRepository()}
		manager := NewGameManager(discardLogger(), repo, nil, WithShuffle(fixedRoles))
		session := newStartedGame(t, manager)

		repo.failures.Store(2)
		require.NoError(t, manager.AdvancePhase(ctx, session.ID, "p1"))

		stored, err := manager.GetSession(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StateNightResults, stored.Status)
	})

	t.Run("Conflicts surface once retries run out", func(t *testing.T) {
		repo := &flakyRepo{SessionRepository: repository.NewMemorySessionRepository()}
		manager := NewGameManager(discardLogger(), repo, nil, WithShuffle(fixedRoles), WithMaxRetries(2))
		session := newStartedGame(t, manager)

		repo.failures.Store(10)
		err := manager.AdvancePhase(ctx, session.ID, "p1")

		assert.ErrorIs(t, err, apperror.ErrStoreConflict)
	})
}

func TestGameManager_Lobby(t *testing.T) {
	ctx := context.Background()

	t.Run("Joining an unknown room", func(t *testing.T) {
		manager := NewGameManager(discardLogger(), repository.NewMemorySessionRepository(), nil)

		_, err := manager.JoinSession(ctx, "000000", "p1", "Anna")

		assert.ErrorIs(t, err, apperror.ErrSessionNotFound)
	})

	t.Run("Joining after the start", func(t *testing.T) {
		manager := NewGameManager(discardLogger(), repository.NewMemorySessionRepository(), nil)
		session := newStartedGame(t, manager)

		_, err := manager.JoinSession(ctx, session.RoomCode, "p5", "late")

		assert.ErrorIs(t, err, apperror.ErrAlreadyStarted)
	})

	t.Run("Host leaving hands over the session", func(t *testing.T) {
		manager := NewGameManager(discardLogger(), repository.NewMemorySessionRepository(), nil)
		session := newLobby(t, manager, "p2", "p3", "p1")

		require.NoError(t, manager.LeaveSession(ctx, session.ID, "p2"))

		stored, err := manager.GetSession(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, "p1", stored.HostID)
		assert.Len(t, stored.Players, 2)
	})

	t.Run("Last player leaving deletes the session", func(t *testing.T) {
		manager := NewGameManager(discardLogger(), repository.NewMemorySessionRepository(), nil)
		session := newLobby(t, manager, "p1")

		require.NoError(t, manager.LeaveSession(ctx, session.ID, "p1"))

		_, err := manager.GetSession(ctx, session.ID)
		assert.ErrorIs(t, err, apperror.ErrSessionNotFound)
	})

	t.Run("Join racing the last leave does not land in a deleted session", func(t *testing.T) {
		// Given: a lobby whose only player is leaving
		repo := &joinOnDeleteRepo{SessionRepository: repository.NewMemorySessionRepository()}
		manager := NewGameManager(discardLogger(), repo, nil)
		repo.manager = manager
		session := newLobby(t, manager, "p1")
		repo.roomCode = session.RoomCode

		// When: someone joins between the empty commit and the delete
		require.NoError(t, manager.LeaveSession(ctx, session.ID, "p1"))

		// Then: the join is refused instead of reporting a seat that no longer exists
		assert.ErrorIs(t, repo.joinErr, apperror.ErrSessionNotFound)

		_, err := manager.GetSession(ctx, session.ID)
		assert.ErrorIs(t, err, apperror.ErrSessionNotFound)
	})

	t.Run("Missing player id", func(t *testing.T) {
		manager := NewGameManager(discardLogger(), repository.NewMemorySessionRepository(), nil)

		_, err := manager.CreateSession(ctx, "", "Anna")

		assert.ErrorIs(t, err, apperror.ErrInvalidRequest)
	})
}
