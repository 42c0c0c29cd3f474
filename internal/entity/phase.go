package entity

type State string

const (
	StateLobby           State = "LOBBY"
	StateRoleAssignment  State = "ROLE_ASSIGNMENT"
	StateNight           State = "NIGHT"
	StateNightResults    State = "NIGHT_RESULTS"
	StateDayDiscussion   State = "DAY_DISCUSSION"
	StateDayVoting       State = "DAY_VOTING"
	StateExecutionResult State = "EXECUTION_RESULT"
	StateGameOver        State = "GAME_OVER"
)

var transitions = map[State]State{
	StateLobby:           StateRoleAssignment,
	StateRoleAssignment:  StateNight,
	StateNight:           StateNightResults,
	StateNightResults:    StateDayDiscussion,
	StateDayDiscussion:   StateDayVoting,
	StateDayVoting:       StateExecutionResult,
	StateExecutionResult: StateNight,
	StateGameOver:        StateGameOver,
}

// Next returns the nominal successor. Unknown states map to GameOver.
func (that State) Next() State {
	next, ok := transitions[that]
	if !ok {
		return StateGameOver
	}
	return next
}

func (that State) IsTerminal() bool {
	return that == StateGameOver
}

func (that State) IsValid() bool {
	_, ok := transitions[that]
	return ok
}

// AcceptsAction reports whether kind may be submitted while in this state.
func (that State) AcceptsAction(kind ActionKind) bool {
	if kind == ActionVote {
		return that == StateDayVoting
	}
	return that == StateNight
}

// RequiresAction is advisory only and never drives advancement.
func (that State) RequiresAction(role RoleID, alive bool) bool {
	if !alive || role == "" {
		return false
	}

	switch that {
	case StateNight:
		r, ok := LookupRole(role)
		return ok && r.NightAction != ""
	case StateDayVoting:
		return true
	default:
		return false
	}
}
