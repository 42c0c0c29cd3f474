package mafia

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rocketscienceinc/palermo-backend/internal/entity"
)

// ResolveNight computes the outcome of one night from every action submitted for it.
// The result does not depend on submission order and the roster is not modified;
// the caller applies the elimination.
func ResolveNight(phase int, actions []entity.Action, players map[string]*entity.Player) *entity.PhaseResult {
	actions = sortedActions(actions)

	result := &entity.PhaseResult{
		PhaseNumber: phase,
		State:       entity.StateNightResults,
	}

	protected := protectedTargets(actions)
	if len(protected) > 0 {
		result.ProtectedPlayerIDs = protected
	}

	var summary strings.Builder

	if len(protected) > 0 {
		fmt.Fprintf(&summary, "%d %s protected during the night.\n", len(protected), plural(len(protected), "player was", "players were"))
	}

	target, hasTarget := killTarget(actions)
	switch {
	case !hasTarget:
		summary.WriteString("The Mafia did not choose a target.\n")
	case contains(protected, target):
		fmt.Fprintf(&summary, "The Mafia targeted %s, but they were protected and survived the night.\n", displayName(players, target))
	default:
		result.EliminatedPlayerID = target
		if player, ok := players[target]; ok {
			result.EliminatedRole = player.Role
		}
		fmt.Fprintf(&summary, "The Mafia eliminated %s during the night. They were a %s.\n",
			displayName(players, target), roleName(result.EliminatedRole))
	}

	if investigation := investigate(actions, players); investigation != nil {
		result.Investigation = investigation
		summary.WriteString("The Ispettore conducted an investigation.\n")
	}

	if team, ok := evaluateAfter(players, result.EliminatedPlayerID); ok {
		result.WinningTeam = team
		summary.WriteString(gameOverBanner(team))
	}

	result.Summary = summary.String()

	return result
}

func sortedActions(actions []entity.Action) []entity.Action {
	sorted := append([]entity.Action(nil), actions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SourceID != sorted[j].SourceID {
			return sorted[i].SourceID < sorted[j].SourceID
		}
		return sorted[i].Kind < sorted[j].Kind
	})
	return sorted
}

// protectedTargets is the union of every Protect and Bless target, ordered by id.
func protectedTargets(actions []entity.Action) []string {
	seen := map[string]struct{}{}
	for _, action := range actions {
		if action.Kind.IsProtection() {
			seen[action.TargetID] = struct{}{}
		}
	}

	result := make([]string, 0, len(seen))
	for id := range seen {
		result = append(result, id)
	}
	sort.Strings(result)

	return result
}

// killTarget picks the most targeted player. Ties go to the lowest player id.
func killTarget(actions []entity.Action) (string, bool) {
	counts := map[string]int{}
	for _, action := range actions {
		if action.Kind == entity.ActionKill {
			counts[action.TargetID]++
		}
	}

	if len(counts) == 0 {
		return "", false
	}

	var best string
	bestCount := 0
	for id, count := range counts {
		if count > bestCount || (count == bestCount && id < best) {
			best, bestCount = id, count
		}
	}

	return best, true
}

// investigate uses the first Investigate action by source id.
func investigate(actions []entity.Action, players map[string]*entity.Player) *entity.Investigation {
	for _, action := range actions {
		if action.Kind != entity.ActionInvestigate {
			continue
		}

		isMafia := false
		if target, ok := players[action.TargetID]; ok {
			isMafia = target.IsMafia()
		}

		return &entity.Investigation{
			InvestigatorID: action.SourceID,
			TargetID:       action.TargetID,
			IsMafia:        isMafia,
		}
	}

	return nil
}

func contains(list []string, id string) bool {
	for _, item := range list {
		if item == id {
			return true
		}
	}
	return false
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func displayName(players map[string]*entity.Player, id string) string {
	if player, ok := players[id]; ok && player.Name != "" {
		return player.Name
	}
	return id
}

func roleName(id entity.RoleID) string {
	if role, ok := entity.LookupRole(id); ok {
		return role.DisplayName
	}
	return "player with no role"
}

func gameOverBanner(team entity.Team) string {
	if team == entity.TeamMafia {
		return "\nGAME OVER!\nThe Mafia has taken control of the town.\n"
	}
	return "\nGAME OVER!\nThe Citizens have eliminated all Mafia members and saved the town!\n"
}
