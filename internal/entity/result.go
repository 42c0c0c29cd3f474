package entity

import (
	"encoding/json"
	"time"
)

type Investigation struct {
	InvestigatorID string `json:"investigator_id"`
	TargetID       string `json:"target_id"`
	IsMafia        bool   `json:"is_mafia"`
}

// PhaseResult is written once per concluding phase and never changed afterwards.
type PhaseResult struct {
	PhaseNumber        int            `json:"phase_number"`
	State              State          `json:"state"`
	EliminatedPlayerID string         `json:"eliminated_player_id,omitempty"`
	EliminatedRole     RoleID         `json:"eliminated_role,omitempty"`
	Investigation      *Investigation `json:"investigation,omitempty"`
	ProtectedPlayerIDs []string       `json:"protected_player_ids,omitempty"`
	Votes              map[string]int `json:"votes,omitempty"`
	WinningTeam        Team           `json:"winning_team,omitempty"`
	Summary            string         `json:"summary"`
}

func (that *PhaseResult) HasWinner() bool {
	return that.WinningTeam != ""
}

// ProtectedPlayerID is the lowest protected id, for clients that show a single protector.
func (that *PhaseResult) ProtectedPlayerID() string {
	if len(that.ProtectedPlayerIDs) == 0 {
		return ""
	}
	return that.ProtectedPlayerIDs[0]
}

// MarshalJSON adds protected_player_id, derived from the protected list.
func (that PhaseResult) MarshalJSON() ([]byte, error) {
	type plain PhaseResult

	return json.Marshal(struct {
		plain
		ProtectedPlayerID string `json:"protected_player_id,omitempty"`
	}{
		plain:             plain(that),
		ProtectedPlayerID: that.ProtectedPlayerID(),
	})
}

// Public returns a copy without the investigation, which only the investigator may read.
func (that *PhaseResult) Public() *PhaseResult {
	result := that.Clone()
	result.Investigation = nil
	return result
}

func (that *PhaseResult) Clone() *PhaseResult {
	if that == nil {
		return nil
	}

	result := *that
	if that.Investigation != nil {
		investigation := *that.Investigation
		result.Investigation = &investigation
	}
	if that.ProtectedPlayerIDs != nil {
		result.ProtectedPlayerIDs = append([]string(nil), that.ProtectedPlayerIDs...)
	}
	if that.Votes != nil {
		result.Votes = make(map[string]int, len(that.Votes))
		for k, v := range that.Votes {
			result.Votes[k] = v
		}
	}

	return &result
}

// GameRecord is the archived summary of a finished session.
type GameRecord struct {
	SessionID   string    `json:"session_id"`
	RoomCode    string    `json:"room_code"`
	WinningTeam Team      `json:"winning_team"`
	Phases      int       `json:"phases"`
	Players     []Player  `json:"players"`
	FinishedAt  time.Time `json:"finished_at"`
}
