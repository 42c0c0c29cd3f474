package repository

import (
	"context"
	"sync"

	"github.com/rocketscienceinc/palermo-backend/internal/apperror"
	"github.com/rocketscienceinc/palermo-backend/internal/entity"
)

// memorySession keeps sessions in process memory. It honours the same conditional
// write contract as the Redis store and suits single-process deployments and tests.
type memorySession struct {
	mu          sync.RWMutex
	sessions    map[string]*entity.Session
	rooms       map[string]string
	locks       map[string]struct{}
	subscribers map[string]map[chan entity.SessionUpdate]struct{}
}

func NewMemorySessionRepository() SessionRepository {
	return &memorySession{
		sessions:    make(map[string]*entity.Session),
		rooms:       make(map[string]string),
		locks:       make(map[string]struct{}),
		subscribers: make(map[string]map[chan entity.SessionUpdate]struct{}),
	}
}

func (that *memorySession) Create(_ context.Context, session *entity.Session) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.rooms[session.RoomCode]; ok {
		return apperror.ErrStoreConflict.WithMessage("room code already in use")
	}

	that.sessions[session.ID] = session.Clone()
	that.rooms[session.RoomCode] = session.ID

	return nil
}

func (that *memorySession) GetByID(_ context.Context, id string) (*entity.Session, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	session, ok := that.sessions[id]
	if !ok {
		return nil, apperror.ErrSessionNotFound
	}

	return session.Clone(), nil
}

func (that *memorySession) GetByRoomCode(ctx context.Context, code string) (*entity.Session, error) {
	that.mu.RLock()
	id, ok := that.rooms[code]
	that.mu.RUnlock()

	if !ok {
		return nil, apperror.ErrSessionNotFound
	}

	return that.GetByID(ctx, id)
}

// Update runs mutate on a copy outside the lock and commits only if nobody else committed meanwhile.
func (that *memorySession) Update(
	ctx context.Context,
	id string,
	mutate func(*entity.Session) error,
) (*entity.Session, error) {
	session, err := that.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err = mutate(session); err != nil {
		return nil, err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	current, ok := that.sessions[id]
	if !ok {
		return nil, apperror.ErrSessionNotFound
	}

	if current.Version != session.Version || countActions(current) != countActions(session) {
		return nil, apperror.ErrStoreConflict
	}

	session.Version++
	session.Actions = current.Clone().Actions
	that.sessions[id] = session.Clone()

	that.notify(entity.SessionUpdate{SessionID: id, Version: session.Version})

	return session, nil
}

func (that *memorySession) AddAction(
	ctx context.Context,
	id string,
	action entity.Action,
	check func(*entity.Session, *entity.Action) error,
) (*entity.Session, error) {
	session, err := that.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err = check(session, &action); err != nil {
		return nil, err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	current, ok := that.sessions[id]
	if !ok {
		return nil, apperror.ErrSessionNotFound
	}

	if current.Version != session.Version {
		return nil, apperror.ErrStoreConflict
	}

	if !current.PutAction(action) {
		return nil, apperror.ErrDuplicateAction
	}

	that.notify(entity.SessionUpdate{SessionID: id, Version: current.Version})

	return current.Clone(), nil
}

func (that *memorySession) Delete(_ context.Context, id string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	session, ok := that.sessions[id]
	if !ok {
		return apperror.ErrSessionNotFound
	}

	delete(that.sessions, id)
	delete(that.rooms, session.RoomCode)

	that.notify(entity.SessionUpdate{SessionID: id, Version: session.Version, Deleted: true})

	return nil
}

func (that *memorySession) Lock(_ context.Context, id string) (func(context.Context) error, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.locks[id]; ok {
		return nil, apperror.ErrStoreConflict.WithMessage("another phase transition is in progress")
	}

	that.locks[id] = struct{}{}

	return func(context.Context) error {
		that.mu.Lock()
		defer that.mu.Unlock()

		delete(that.locks, id)

		return nil
	}, nil
}

func (that *memorySession) Subscribe(ctx context.Context, id string) (<-chan entity.SessionUpdate, error) {
	updates := make(chan entity.SessionUpdate, 16)

	that.mu.Lock()
	if that.subscribers[id] == nil {
		that.subscribers[id] = make(map[chan entity.SessionUpdate]struct{})
	}
	that.subscribers[id][updates] = struct{}{}
	that.mu.Unlock()

	go func() {
		<-ctx.Done()

		that.mu.Lock()
		defer that.mu.Unlock()

		delete(that.subscribers[id], updates)
		if len(that.subscribers[id]) == 0 {
			delete(that.subscribers, id)
		}
		close(updates)
	}()

	return updates, nil
}

// notify must be called with mu held. Slow subscribers miss updates rather than block writers.
func (that *memorySession) notify(update entity.SessionUpdate) {
	for ch := range that.subscribers[update.SessionID] {
		select {
		case ch <- update:
		default:
		}
	}
}

func countActions(session *entity.Session) int {
	total := 0
	for _, phases := range session.Actions {
		for _, slots := range phases {
			total += len(slots)
		}
	}
	return total
}
