package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/palermo-backend/internal/apperror"
	"github.com/rocketscienceinc/palermo-backend/internal/entity"
)

const shutdownTimeout = 5 * time.Second

type gameManager interface {
	StartGame(ctx context.Context, sessionID, hostID string) error
	SubmitAction(ctx context.Context, sessionID string, action entity.Action) error
	SubmitVote(ctx context.Context, sessionID, voterID, targetID string) error
	AdvancePhase(ctx context.Context, sessionID, callerID string) error
	GetSessionView(ctx context.Context, sessionID, viewerID string) (*entity.SessionView, error)
}

type sessionNotifier interface {
	Subscribe(ctx context.Context, sessionID string) (<-chan entity.SessionUpdate, error)
}

type handlerFunc func(ctx context.Context, client *connection, msg *Message) error

type Server struct {
	logger *slog.Logger

	game     gameManager
	notifier sessionNotifier
	upgrader websocket.Upgrader

	handlers map[string]handlerFunc
}

func New(logger *slog.Logger, game gameManager, notifier sessionNotifier) *Server {
	server := &Server{
		logger: logger.With("component", "websocket"),

		game:     game,
		notifier: notifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},

		handlers: make(map[string]handlerFunc),
	}

	server.handlers[actionGameStart] = server.handleStart
	server.handlers[actionGameAction] = server.handleAction
	server.handlers[actionGameVote] = server.handleVote
	server.handlers[actionGameAdvance] = server.handleAdvance

	return server
}

func (that *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", that.serveWS)

	return r
}

// Start - starts WebSocket server. Open connections are closed once ctx is cancelled.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     that.Routes(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 30 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shut down WebSocket server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// serveWS - upgrades the connection and streams the player's view of one session.
func (that *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	playerID := r.URL.Query().Get("player_id")

	log := that.logger.With("method", "serveWS", "sessionID", sessionID, "playerID", playerID)

	if sessionID == "" || playerID == "" {
		http.Error(w, "session_id and player_id are required", http.StatusBadRequest)
		return
	}

	if _, err := that.game.GetSessionView(r.Context(), sessionID, playerID); err != nil {
		if errors.Is(err, apperror.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		log.Error("failed to load session", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	conn, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// subscribe before the first view is sent so no change in between is missed
	updates, err := that.notifier.Subscribe(ctx, sessionID)
	if err != nil {
		log.Error("failed to subscribe to session", "error", err)
		_ = conn.Close()
		return
	}

	client := newConnection(conn, sessionID, playerID)

	log.Info("WebSocket connection established")

	go that.writePump(ctx, cancel, client, updates)
	that.readPump(ctx, client)

	log.Info("WebSocket connection closed")
}
