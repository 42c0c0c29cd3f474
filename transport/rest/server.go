package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rocketscienceinc/palermo-backend/internal/entity"
)

const shutdownTimeout = 5 * time.Second

type gameManager interface {
	CreateSession(ctx context.Context, hostID, hostName string) (*entity.Session, error)
	JoinSession(ctx context.Context, roomCode, playerID, name string) (*entity.Session, error)
	LeaveSession(ctx context.Context, sessionID, playerID string) error
	StartGame(ctx context.Context, sessionID, hostID string) error
	SubmitAction(ctx context.Context, sessionID string, action entity.Action) error
	SubmitVote(ctx context.Context, sessionID, voterID, targetID string) error
	AdvancePhase(ctx context.Context, sessionID, callerID string) error
	CheckWinner(ctx context.Context, sessionID string) (entity.Team, bool, error)
	GetSessionView(ctx context.Context, sessionID, viewerID string) (*entity.SessionView, error)
	GetInvestigations(ctx context.Context, sessionID, playerID string) ([]entity.Investigation, error)
}

type historyReader interface {
	ListRecent(ctx context.Context, limit int) ([]*entity.GameRecord, error)
}

type Server struct {
	logger *slog.Logger

	game    gameManager
	history historyReader
	ping    PingHandler
}

// New - history may be nil when the archive is disabled.
func New(logger *slog.Logger, game gameManager, history historyReader) *Server {
	return &Server{
		logger: logger.With("component", "rest"),

		game:    game,
		history: history,
		ping:    NewPingHandler(),
	}
}

func (that *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/ping", that.ping.PingHandler)
	r.Get("/history", that.listHistory)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", that.createSession)
		r.Post("/join", that.joinSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", that.getSession)
			r.Get("/winner", that.getWinner)
			r.Get("/investigations", that.getInvestigations)

			r.Post("/leave", that.leaveSession)
			r.Post("/start", that.startGame)
			r.Post("/actions", that.submitAction)
			r.Post("/votes", that.submitVote)
			r.Post("/advance", that.advancePhase)
		})
	})

	return r
}

// Start - serves the API until ctx is cancelled.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      that.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shut down HTTP server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
