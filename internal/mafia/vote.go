package mafia

import (
	"fmt"
	"strings"

	"github.com/rocketscienceinc/palermo-backend/internal/entity"
)

type VoteTally struct {
	Counts   map[string]int
	Executed string
}

func (that VoteTally) HasExecution() bool {
	return that.Executed != ""
}

// TallyVotes executes the unique plurality target. A shared maximum or no votes means no execution.
func TallyVotes(votes []entity.Action) VoteTally {
	tally := VoteTally{Counts: map[string]int{}}

	for _, vote := range votes {
		tally.Counts[vote.TargetID]++
	}

	best, tied := "", false
	bestCount := 0
	for id, count := range tally.Counts {
		switch {
		case count > bestCount:
			best, bestCount, tied = id, count, false
		case count == bestCount:
			tied = true
		}
	}

	if bestCount > 0 && !tied {
		tally.Executed = best
	}

	return tally
}

// ResolveExecution builds the day result for one phase. The roster is not modified.
func ResolveExecution(phase int, votes []entity.Action, players map[string]*entity.Player) *entity.PhaseResult {
	tally := TallyVotes(votes)

	result := &entity.PhaseResult{
		PhaseNumber: phase,
		State:       entity.StateExecutionResult,
		Votes:       tally.Counts,
	}

	var summary strings.Builder

	if tally.HasExecution() {
		result.EliminatedPlayerID = tally.Executed
		if player, ok := players[tally.Executed]; ok {
			result.EliminatedRole = player.Role
		}
		fmt.Fprintf(&summary, "The town executed %s. They were a %s.\n",
			displayName(players, tally.Executed), roleName(result.EliminatedRole))
	} else {
		summary.WriteString("The town couldn't reach a consensus. No one was executed.\n")
	}

	if team, ok := evaluateAfter(players, result.EliminatedPlayerID); ok {
		result.WinningTeam = team
		summary.WriteString(gameOverBanner(team))
	}

	result.Summary = summary.String()

	return result
}
