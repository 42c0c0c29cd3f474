package mafia

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/rocketscienceinc/palermo-backend/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roster(roles map[string]entity.RoleID) map[string]*entity.Player {
	players := make(map[string]*entity.Player, len(roles))
	for id, role := range roles {
		player := entity.NewPlayer(id, strings.ToUpper(id))
		player.Role = role
		players[id] = player
	}
	return players
}

func kill(source, target string) entity.Action {
	return entity.Action{Kind: entity.ActionKill, SourceID: source, TargetID: target, PhaseNumber: 1}
}

func TestResolveNight(t *testing.T) {
	t.Run("Kill and investigation on a four player table", func(t *testing.T) {
		// Given: P1 Mafioso, P2 Ispettore, P3 and P4 Paesani
		players := roster(map[string]entity.RoleID{
			"p1": entity.RoleMafioso,
			"p2": entity.RoleIspettore,
			"p3": entity.RolePaesano,
			"p4": entity.RolePaesano,
		})
		actions := []entity.Action{
			{Kind: entity.ActionInvestigate, SourceID: "p2", TargetID: "p1", PhaseNumber: 1},
			kill("p1", "p3"),
		}

		// When: resolving the night
		result := ResolveNight(1, actions, players)

		// Then: P3 dies and the investigation finds the Mafioso
		assert.Equal(t, entity.StateNightResults, result.State)
		assert.Equal(t, "p3", result.EliminatedPlayerID)
		assert.Equal(t, entity.RolePaesano, result.EliminatedRole)
		require.NotNil(t, result.Investigation)
		assert.Equal(t, entity.Investigation{InvestigatorID: "p2", TargetID: "p1", IsMafia: true}, *result.Investigation)
		assert.Empty(t, result.WinningTeam)

		// And: the roster itself is untouched
		assert.True(t, players["p3"].Alive)
	})

	t.Run("Summary never reveals the investigation outcome", func(t *testing.T) {
		players := roster(map[string]entity.RoleID{
			"p1": entity.RoleMafioso,
			"p2": entity.RoleIspettore,
			"p3": entity.RolePaesano,
			"p4": entity.RolePaesano,
		})
		actions := []entity.Action{{Kind: entity.ActionInvestigate, SourceID: "p2", TargetID: "p1", PhaseNumber: 1}}

		result := ResolveNight(1, actions, players)

		lower := strings.ToLower(result.Summary)
		assert.Contains(t, lower, "investigation")
		assert.NotContains(t, lower, "true")
		assert.NotContains(t, lower, "is mafia")
		assert.NotContains(t, lower, "mafioso")
		assert.Nil(t, result.Public().Investigation)
	})

	t.Run("Protected target survives", func(t *testing.T) {
		// Given: the Sgarrista protects the Mafia target
		players := roster(map[string]entity.RoleID{
			"m1": entity.RoleMafioso,
			"m2": entity.RoleMafioso,
			"s1": entity.RoleSgarrista,
			"c1": entity.RolePaesano,
			"c2": entity.RolePaesano,
			"c3": entity.RolePaesano,
			"c4": entity.RolePaesano,
		})
		actions := []entity.Action{
			kill("m1", "c1"),
			kill("m2", "c1"),
			{Kind: entity.ActionProtect, SourceID: "s1", TargetID: "c1", PhaseNumber: 1},
		}

		// When: resolving
		result := ResolveNight(1, actions, players)

		// Then: nobody dies
		assert.Empty(t, result.EliminatedPlayerID)
		assert.Equal(t, "c1", result.ProtectedPlayerID())
		assert.Contains(t, result.Summary, "survived")
	})

	t.Run("Multiple protectors each shield their own target", func(t *testing.T) {
		players := roster(map[string]entity.RoleID{
			"m1": entity.RoleMafioso,
			"m2": entity.RoleMafioso,
			"m3": entity.RoleMafioso,
			"s1": entity.RoleSgarrista,
			"b1": entity.RolePrete,
			"c1": entity.RolePaesano,
			"c2": entity.RolePaesano,
			"c3": entity.RolePaesano,
			"c4": entity.RolePaesano,
			"i1": entity.RoleIspettore,
		})
		protections := []entity.Action{
			{Kind: entity.ActionProtect, SourceID: "s1", TargetID: "c1", PhaseNumber: 1},
			{Kind: entity.ActionBless, SourceID: "b1", TargetID: "c2", PhaseNumber: 1},
		}

		for _, target := range []string{"c1", "c2"} {
			actions := append([]entity.Action{kill("m1", target)}, protections...)

			result := ResolveNight(1, actions, players)

			assert.Empty(t, result.EliminatedPlayerID, target)
			assert.Equal(t, []string{"c1", "c2"}, result.ProtectedPlayerIDs)
		}

		result := ResolveNight(1, append([]entity.Action{kill("m1", "c3")}, protections...), players)
		assert.Equal(t, "c3", result.EliminatedPlayerID)
	})

	t.Run("Majority of kill votes decides the target", func(t *testing.T) {
		players := roster(map[string]entity.RoleID{
			"m1": entity.RoleMafioso,
			"m2": entity.RoleMafioso,
			"m3": entity.RoleMafioso,
			"a":  entity.RolePaesano,
			"b":  entity.RolePaesano,
			"c":  entity.RolePaesano,
			"d":  entity.RolePaesano,
			"e":  entity.RolePaesano,
			"f":  entity.RoleIspettore,
		})

		result := ResolveNight(1, []entity.Action{kill("m1", "b"), kill("m2", "a"), kill("m3", "b")}, players)

		assert.Equal(t, "b", result.EliminatedPlayerID)
	})

	t.Run("Kill tie goes to the lowest player id", func(t *testing.T) {
		players := roster(map[string]entity.RoleID{
			"m1": entity.RoleMafioso,
			"m2": entity.RoleMafioso,
			"x":  entity.RolePaesano,
			"y":  entity.RolePaesano,
			"z":  entity.RolePaesano,
			"i":  entity.RoleIspettore,
		})

		first := ResolveNight(1, []entity.Action{kill("m1", "y"), kill("m2", "x")}, players)
		second := ResolveNight(1, []entity.Action{kill("m2", "x"), kill("m1", "y")}, players)

		assert.Equal(t, "x", first.EliminatedPlayerID)
		assert.Equal(t, first, second)
	})

	t.Run("No kill means no elimination", func(t *testing.T) {
		players := roster(map[string]entity.RoleID{
			"m1": entity.RoleMafioso,
			"a":  entity.RolePaesano,
			"b":  entity.RolePaesano,
			"c":  entity.RoleIspettore,
		})

		result := ResolveNight(1, nil, players)

		assert.Empty(t, result.EliminatedPlayerID)
		assert.Nil(t, result.Investigation)
		assert.Empty(t, result.WinningTeam)
	})

	t.Run("Elimination that leaves Mafia at parity ends the game", func(t *testing.T) {
		players := roster(map[string]entity.RoleID{
			"m1": entity.RoleMafioso,
			"a":  entity.RolePaesano,
			"b":  entity.RolePaesano,
		})

		result := ResolveNight(3, []entity.Action{kill("m1", "a")}, players)

		assert.Equal(t, entity.TeamMafia, result.WinningTeam)
		assert.Contains(t, result.Summary, "GAME OVER")
	})

	t.Run("Resolving the same input twice is byte identical", func(t *testing.T) {
		players := roster(map[string]entity.RoleID{
			"m1": entity.RoleMafioso,
			"m2": entity.RoleMafioso,
			"s":  entity.RoleSgarrista,
			"i":  entity.RoleIspettore,
			"a":  entity.RolePaesano,
			"b":  entity.RolePaesano,
			"c":  entity.RolePaesano,
		})
		actions := []entity.Action{
			kill("m1", "a"),
			kill("m2", "b"),
			{Kind: entity.ActionProtect, SourceID: "s", TargetID: "c", PhaseNumber: 1},
			{Kind: entity.ActionInvestigate, SourceID: "i", TargetID: "m2", PhaseNumber: 1},
		}

		first, err := json.Marshal(ResolveNight(1, actions, players))
		require.NoError(t, err)
		second, err := json.Marshal(ResolveNight(1, []entity.Action{actions[3], actions[1], actions[2], actions[0]}, players))
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})
}
