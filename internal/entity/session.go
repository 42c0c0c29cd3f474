package entity

import (
	"sort"
	"time"

	"github.com/rocketscienceinc/palermo-backend/internal/apperror"
)

type Session struct {
	ID           string             `json:"id"`
	RoomCode     string             `json:"room_code"`
	HostID       string             `json:"host_id"`
	Status       State              `json:"status"`
	CurrentPhase int                `json:"current_phase"`
	Players      map[string]*Player `json:"players"`
	WinningTeam  Team               `json:"winning_team,omitempty"`
	Version      int64              `json:"version"`
	CreatedAt    time.Time          `json:"created_at"`

	// Actions are persisted separately from the document so each slot can be claimed atomically.
	Actions map[Namespace]map[int]map[string]Action `json:"-"`
	Results map[Namespace]map[int]*PhaseResult      `json:"results,omitempty"`
}

func NewSession(id, roomCode string, host *Player) *Session {
	return &Session{
		ID:        id,
		RoomCode:  roomCode,
		HostID:    host.ID,
		Status:    StateLobby,
		Players:   map[string]*Player{host.ID: host},
		Actions:   map[Namespace]map[int]map[string]Action{},
		Results:   map[Namespace]map[int]*PhaseResult{},
		CreatedAt: time.Now().UTC(),
	}
}

func (that *Session) IsHost(playerID string) bool {
	return that.HostID == playerID
}

func (that *Session) IsLobby() bool {
	return that.Status == StateLobby
}

func (that *Session) IsFinished() bool {
	return that.Status.IsTerminal()
}

func (that *Session) Player(id string) (*Player, bool) {
	player, ok := that.Players[id]
	return player, ok
}

// PlayerIDs returns the roster ordered by id.
func (that *Session) PlayerIDs() []string {
	ids := make([]string, 0, len(that.Players))
	for id := range that.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AddPlayer is idempotent for players already seated.
func (that *Session) AddPlayer(player *Player) error {
	if _, ok := that.Players[player.ID]; ok {
		return nil
	}

	if !that.IsLobby() {
		return apperror.ErrAlreadyStarted
	}

	// an empty roster means the last player left and the session is being deleted
	if len(that.Players) == 0 {
		return apperror.ErrSessionNotFound
	}

	if len(that.Players) >= MaxPlayers {
		return apperror.ErrRoomFull
	}

	that.Players[player.ID] = player

	return nil
}

// RemovePlayer drops a player from the lobby and hands the host seat to the lowest remaining id.
// It reports whether the session is now empty.
func (that *Session) RemovePlayer(playerID string) (bool, error) {
	if !that.IsLobby() {
		return false, apperror.ErrAlreadyStarted
	}

	delete(that.Players, playerID)

	if len(that.Players) == 0 {
		that.HostID = ""
		return true, nil
	}

	if that.HostID == playerID {
		that.HostID = that.PlayerIDs()[0]
	}

	return false, nil
}

// AssignRoles gives the i-th player (ordered by id) the i-th role and revives everyone.
func (that *Session) AssignRoles(roles []RoleID) {
	for i, id := range that.PlayerIDs() {
		player := that.Players[id]
		player.Alive = true
		if i < len(roles) {
			player.Role = roles[i]
		}
	}
}

// ActionsFor returns the actions of one phase ordered by source player id.
func (that *Session) ActionsFor(ns Namespace, phase int) []Action {
	slots := that.Actions[ns][phase]

	result := make([]Action, 0, len(slots))
	for _, action := range slots {
		result = append(result, action)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SourceID < result[j].SourceID
	})

	return result
}

// PhaseActions returns the raw slot map of one phase keyed by source player id.
func (that *Session) PhaseActions(ns Namespace, phase int) map[string]Action {
	return that.Actions[ns][phase]
}

func (that *Session) HasAction(ns Namespace, phase int, playerID string) bool {
	_, ok := that.Actions[ns][phase][playerID]
	return ok
}

// PutAction stores an action in its slot. It returns false if the slot was already taken.
func (that *Session) PutAction(action Action) bool {
	ns := action.Namespace()

	if that.Actions == nil {
		that.Actions = map[Namespace]map[int]map[string]Action{}
	}
	if that.Actions[ns] == nil {
		that.Actions[ns] = map[int]map[string]Action{}
	}
	if that.Actions[ns][action.PhaseNumber] == nil {
		that.Actions[ns][action.PhaseNumber] = map[string]Action{}
	}

	if _, ok := that.Actions[ns][action.PhaseNumber][action.SourceID]; ok {
		return false
	}

	that.Actions[ns][action.PhaseNumber][action.SourceID] = action

	return true
}

func (that *Session) Result(ns Namespace, phase int) (*PhaseResult, bool) {
	result, ok := that.Results[ns][phase]
	return result, ok
}

// SetResult writes a phase result once. It returns false if one already exists.
func (that *Session) SetResult(ns Namespace, result *PhaseResult) bool {
	if that.Results == nil {
		that.Results = map[Namespace]map[int]*PhaseResult{}
	}
	if that.Results[ns] == nil {
		that.Results[ns] = map[int]*PhaseResult{}
	}

	if _, ok := that.Results[ns][result.PhaseNumber]; ok {
		return false
	}

	that.Results[ns][result.PhaseNumber] = result

	return true
}

// Eliminate marks a player dead. Unknown ids are ignored.
func (that *Session) Eliminate(playerID string) {
	if player, ok := that.Players[playerID]; ok {
		player.Eliminate()
	}
}

// Clone returns a deep copy so callers can mutate it without touching shared state.
func (that *Session) Clone() *Session {
	result := *that

	result.Players = make(map[string]*Player, len(that.Players))
	for id, player := range that.Players {
		p := *player
		result.Players[id] = &p
	}

	result.Actions = make(map[Namespace]map[int]map[string]Action, len(that.Actions))
	for ns, phases := range that.Actions {
		result.Actions[ns] = make(map[int]map[string]Action, len(phases))
		for phase, slots := range phases {
			result.Actions[ns][phase] = make(map[string]Action, len(slots))
			for id, action := range slots {
				result.Actions[ns][phase][id] = action
			}
		}
	}

	result.Results = make(map[Namespace]map[int]*PhaseResult, len(that.Results))
	for ns, phases := range that.Results {
		result.Results[ns] = make(map[int]*PhaseResult, len(phases))
		for phase, r := range phases {
			result.Results[ns][phase] = r.Clone()
		}
	}

	return &result
}

// Record builds the archive entry for a finished session.
func (that *Session) Record(finishedAt time.Time) *GameRecord {
	players := make([]Player, 0, len(that.Players))
	for _, id := range that.PlayerIDs() {
		players = append(players, *that.Players[id])
	}

	return &GameRecord{
		SessionID:   that.ID,
		RoomCode:    that.RoomCode,
		WinningTeam: that.WinningTeam,
		Phases:      that.CurrentPhase,
		Players:     players,
		FinishedAt:  finishedAt,
	}
}

// SessionUpdate is published after every committed change to a session.
type SessionUpdate struct {
	SessionID string `json:"session_id"`
	Version   int64  `json:"version"`
	Deleted   bool   `json:"deleted,omitempty"`
}
