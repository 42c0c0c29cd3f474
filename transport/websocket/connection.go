package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/palermo-backend/internal/apperror"
	"github.com/rocketscienceinc/palermo-backend/internal/entity"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 16
)

// connection is one player attached to one session. Only writePump writes to conn.
type connection struct {
	conn *websocket.Conn

	sessionID string
	playerID  string

	send chan *Message
}

func newConnection(conn *websocket.Conn, sessionID, playerID string) *connection {
	return &connection{
		conn:      conn,
		sessionID: sessionID,
		playerID:  playerID,
		send:      make(chan *Message, sendBuffer),
	}
}

func (that *connection) write(msg *Message) error {
	if err := that.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}

	return that.conn.WriteJSON(msg)
}

// enqueue hands msg to writePump. It gives up once the connection is closing.
func (that *connection) enqueue(ctx context.Context, msg *Message) {
	select {
	case that.send <- msg:
	case <-ctx.Done():
	}
}

// readPump reads player intents until the peer goes away or ctx is cancelled.
func (that *Server) readPump(ctx context.Context, client *connection) {
	log := that.logger.With("method", "readPump", "sessionID", client.sessionID, "playerID", client.playerID)

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info("connection lost", "error", err)
			}
			return
		}

		var msg Message
		if err = json.Unmarshal(raw, &msg); err != nil {
			log.Info("failed to unmarshal message", "error", err)
			continue
		}

		that.dispatch(ctx, client, &msg)
	}
}

// writePump sends the current view first, then one view per store change, interleaved with
// replies and keepalive pings.
func (that *Server) writePump(
	ctx context.Context,
	cancel context.CancelFunc,
	client *connection,
	updates <-chan entity.SessionUpdate,
) {
	log := that.logger.With("method", "writePump", "sessionID", client.sessionID, "playerID", client.playerID)

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		_ = client.conn.Close()
	}()

	if err := that.writeView(ctx, client); err != nil {
		log.Info("failed to send view", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			_ = client.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return
		case update, ok := <-updates:
			if !ok {
				return
			}

			if update.Deleted {
				_ = client.write(&Message{Action: actionSessionClosed})
				return
			}

			err := that.writeView(ctx, client)
			if errors.Is(err, apperror.ErrSessionNotFound) {
				_ = client.write(&Message{Action: actionSessionClosed})
				return
			}
			if err != nil {
				log.Info("failed to send view", "error", err)
				return
			}
		case msg := <-client.send:
			if err := client.write(msg); err != nil {
				log.Info("failed to send reply", "error", err)
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (that *Server) writeView(ctx context.Context, client *connection) error {
	view, err := that.game.GetSessionView(ctx, client.sessionID, client.playerID)
	if err != nil {
		return err
	}

	msg, err := newMessage(actionSessionUpdate, view)
	if err != nil {
		return err
	}

	return client.write(msg)
}
