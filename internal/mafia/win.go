package mafia

import "github.com/rocketscienceinc/palermo-backend/internal/entity"

// EvaluateWinner returns the winning team, if any. Players without a role are not counted.
func EvaluateWinner(players map[string]*entity.Player) (entity.Team, bool) {
	var aliveMafia, aliveOthers int

	for _, player := range players {
		if !player.Alive || !player.HasRole() {
			continue
		}

		if player.IsMafia() {
			aliveMafia++
		} else {
			aliveOthers++
		}
	}

	switch {
	case aliveMafia == 0:
		return entity.TeamCitizens, true
	case aliveMafia >= aliveOthers:
		return entity.TeamMafia, true
	default:
		return "", false
	}
}

// evaluateAfter runs the win check on a copy of the roster with eliminatedID removed.
func evaluateAfter(players map[string]*entity.Player, eliminatedID string) (entity.Team, bool) {
	if eliminatedID == "" {
		return EvaluateWinner(players)
	}

	roster := make(map[string]*entity.Player, len(players))
	for id, player := range players {
		roster[id] = player
	}

	if player, ok := players[eliminatedID]; ok {
		dead := *player
		dead.Alive = false
		roster[eliminatedID] = &dead
	}

	return EvaluateWinner(roster)
}
