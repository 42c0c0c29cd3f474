package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/palermo-backend/internal/apperror"
	"github.com/rocketscienceinc/palermo-backend/internal/entity"
)

// SessionRepository is the shared store every orchestrator instance reads and writes.
// Update and AddAction are conditional: they fail with apperror.ErrStoreConflict when
// the session changed between read and write.
type SessionRepository interface {
	Create(ctx context.Context, session *entity.Session) error
	GetByID(ctx context.Context, id string) (*entity.Session, error)
	GetByRoomCode(ctx context.Context, code string) (*entity.Session, error)
	Update(ctx context.Context, id string, mutate func(*entity.Session) error) (*entity.Session, error)
	AddAction(ctx context.Context, id string, action entity.Action, check func(*entity.Session, *entity.Action) error) (*entity.Session, error)
	Delete(ctx context.Context, id string) error
	Lock(ctx context.Context, id string) (func(context.Context) error, error)
	Subscribe(ctx context.Context, id string) (<-chan entity.SessionUpdate, error)
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

type dbSession struct {
	client  *redis.Client
	lockTTL time.Duration
}

func NewSessionRepository(client *redis.Client, lockTTL time.Duration) SessionRepository {
	return &dbSession{
		client:  client,
		lockTTL: lockTTL,
	}
}

func sessionKey(id string) string { return "session:" + id }
func actionsKey(id string) string { return "session:" + id + ":actions" }
func lockKey(id string) string    { return "session:" + id + ":lock" }
func updatesKey(id string) string { return "session:" + id + ":updates" }
func roomKey(code string) string  { return "room:" + code }

func actionField(action entity.Action) string {
	return fmt.Sprintf("%s:%d:%s", action.Namespace(), action.PhaseNumber, action.SourceID)
}

func (that *dbSession) Create(ctx context.Context, session *entity.Session) error {
	claimed, err := that.client.SetNX(ctx, roomKey(session.RoomCode), session.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim room code: %w", err)
	}

	if !claimed {
		return apperror.ErrStoreConflict.WithMessage("room code already in use")
	}

	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err = that.client.Set(ctx, sessionKey(session.ID), sessionJSON, 0).Err(); err != nil {
		that.client.Del(ctx, roomKey(session.RoomCode))
		return fmt.Errorf("failed to set session: %w", err)
	}

	return nil
}

func (that *dbSession) GetByID(ctx context.Context, id string) (*entity.Session, error) {
	return that.load(ctx, that.client, id)
}

func (that *dbSession) GetByRoomCode(ctx context.Context, code string) (*entity.Session, error) {
	id, err := that.client.Get(ctx, roomKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrSessionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	return that.load(ctx, that.client, id)
}

func (that *dbSession) load(ctx context.Context, conn reader, id string) (*entity.Session, error) {
	response, err := conn.Get(ctx, sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrSessionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session entity.Session
	if err = json.Unmarshal([]byte(response), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	slots, err := conn.HGetAll(ctx, actionsKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get actions: %w", err)
	}

	for _, raw := range slots {
		var action entity.Action
		if err = json.Unmarshal([]byte(raw), &action); err != nil {
			return nil, fmt.Errorf("failed to unmarshal action: %w", err)
		}
		session.PutAction(action)
	}

	return &session, nil
}

func (that *dbSession) Update(
	ctx context.Context,
	id string,
	mutate func(*entity.Session) error,
) (*entity.Session, error) {
	var updated *entity.Session

	txf := func(tx *redis.Tx) error {
		session, err := that.load(ctx, tx, id)
		if err != nil {
			return err
		}

		if err = mutate(session); err != nil {
			return err
		}

		session.Version++

		sessionJSON, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		notice, err := json.Marshal(entity.SessionUpdate{SessionID: id, Version: session.Version})
		if err != nil {
			return fmt.Errorf("failed to marshal update: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sessionKey(id), sessionJSON, 0)
			pipe.Publish(ctx, updatesKey(id), notice)
			return nil
		})
		if err != nil {
			return err
		}

		updated = session

		return nil
	}

	if err := that.client.Watch(ctx, txf, sessionKey(id), actionsKey(id)); err != nil {
		return nil, mapTxError(err)
	}

	return updated, nil
}

// AddAction claims the action slot with HSETNX while watching the session document,
// so the slot is only written if the phase did not move after check ran.
// check sees the snapshot the slot is claimed against and may fill in the action's phase.
func (that *dbSession) AddAction(
	ctx context.Context,
	id string,
	action entity.Action,
	check func(*entity.Session, *entity.Action) error,
) (*entity.Session, error) {
	var updated *entity.Session

	txf := func(tx *redis.Tx) error {
		session, err := that.load(ctx, tx, id)
		if err != nil {
			return err
		}

		action := action
		if err = check(session, &action); err != nil {
			return err
		}

		actionJSON, err := json.Marshal(action)
		if err != nil {
			return fmt.Errorf("failed to marshal action: %w", err)
		}

		var claimed *redis.BoolCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			claimed = pipe.HSetNX(ctx, actionsKey(id), actionField(action), actionJSON)
			return nil
		})
		if err != nil {
			return err
		}

		if !claimed.Val() {
			return apperror.ErrDuplicateAction
		}

		session.PutAction(action)
		updated = session

		return nil
	}

	if err := that.client.Watch(ctx, txf, sessionKey(id)); err != nil {
		return nil, mapTxError(err)
	}

	that.publish(ctx, entity.SessionUpdate{SessionID: id, Version: updated.Version})

	return updated, nil
}

func (that *dbSession) Delete(ctx context.Context, id string) error {
	session, err := that.load(ctx, that.client, id)
	if err != nil {
		return err
	}

	err = that.client.Del(ctx, sessionKey(id), actionsKey(id), roomKey(session.RoomCode)).Err()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	that.publish(ctx, entity.SessionUpdate{SessionID: id, Version: session.Version, Deleted: true})

	return nil
}

func (that *dbSession) Lock(ctx context.Context, id string) (func(context.Context) error, error) {
	token := uuid.NewString()

	acquired, err := that.client.SetNX(ctx, lockKey(id), token, that.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if !acquired {
		return nil, apperror.ErrStoreConflict.WithMessage("another phase transition is in progress")
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, that.client, []string{lockKey(id)}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lock: %w", err)
		}
		return nil
	}, nil
}

func (that *dbSession) Subscribe(ctx context.Context, id string) (<-chan entity.SessionUpdate, error) {
	pubsub := that.client.Subscribe(ctx, updatesKey(id))

	// wait for the subscription to be confirmed so no update published afterwards is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	updates := make(chan entity.SessionUpdate, 1)

	go func() {
		defer close(updates)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}

				var update entity.SessionUpdate
				if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
					continue
				}

				select {
				case updates <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return updates, nil
}

func (that *dbSession) publish(ctx context.Context, update entity.SessionUpdate) {
	notice, err := json.Marshal(update)
	if err != nil {
		return
	}

	// best effort
	that.client.Publish(ctx, updatesKey(update.SessionID), notice)
}

func mapTxError(err error) error {
	if errors.Is(err, redis.TxFailedErr) {
		return apperror.ErrStoreConflict
	}

	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}

	return fmt.Errorf("failed to commit session: %w", err)
}
