package entity

import "sort"

type PlayerView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   RoleID `json:"role,omitempty"`
	Alive  bool   `json:"alive"`
	IsHost bool   `json:"is_host"`
}

type Progress struct {
	Acted    int `json:"acted"`
	Expected int `json:"expected"`
}

type ResultView struct {
	Namespace Namespace    `json:"namespace"`
	Result    *PhaseResult `json:"result"`
}

// SessionView is what a single player is allowed to see of a session.
type SessionView struct {
	ID             string       `json:"id"`
	RoomCode       string       `json:"room_code"`
	HostID         string       `json:"host_id"`
	Status         State        `json:"status"`
	CurrentPhase   int          `json:"current_phase"`
	ViewerID       string       `json:"viewer_id"`
	ViewerRole     *Role        `json:"viewer_role,omitempty"`
	Players        []PlayerView `json:"players"`
	RequiresAction bool         `json:"requires_action"`
	HasActed       bool         `json:"has_acted"`
	Progress       Progress     `json:"progress"`
	Results        []ResultView `json:"results"`
	WinningTeam    Team         `json:"winning_team,omitempty"`
}

// RoleVisibleTo reports whether viewerID may see the role of playerID.
func (that *Session) RoleVisibleTo(viewerID, playerID string) bool {
	player, ok := that.Players[playerID]
	if !ok {
		return false
	}

	if viewerID == playerID || !player.Alive || that.IsFinished() {
		return true
	}

	viewer, ok := that.Players[viewerID]

	return ok && viewer.IsMafia() && player.IsMafia()
}

// CurrentNamespace is the namespace that accepts actions in the current state.
func (that *Session) CurrentNamespace() (Namespace, bool) {
	switch that.Status {
	case StateNight:
		return NamespaceNight, true
	case StateDayVoting:
		return NamespaceDay, true
	default:
		return "", false
	}
}

// Progress counts submitted actions against the players expected to act. It never drives advancement.
func (that *Session) Progress() Progress {
	ns, ok := that.CurrentNamespace()
	if !ok {
		return Progress{}
	}

	var progress Progress
	for _, player := range that.Players {
		if that.Status.RequiresAction(player.Role, player.Alive) {
			progress.Expected++
		}
	}
	progress.Acted = len(that.Actions[ns][that.CurrentPhase])

	return progress
}

// InvestigationsBy returns the night investigations made by playerID, oldest first.
func (that *Session) InvestigationsBy(playerID string) []Investigation {
	phases := make([]int, 0, len(that.Results[NamespaceNight]))
	for phase := range that.Results[NamespaceNight] {
		phases = append(phases, phase)
	}
	sort.Ints(phases)

	var result []Investigation
	for _, phase := range phases {
		investigation := that.Results[NamespaceNight][phase].Investigation
		if investigation != nil && investigation.InvestigatorID == playerID {
			result = append(result, *investigation)
		}
	}

	return result
}

func (that *Session) ViewFor(viewerID string) *SessionView {
	view := &SessionView{
		ID:           that.ID,
		RoomCode:     that.RoomCode,
		HostID:       that.HostID,
		Status:       that.Status,
		CurrentPhase: that.CurrentPhase,
		ViewerID:     viewerID,
		Players:      make([]PlayerView, 0, len(that.Players)),
		Progress:     that.Progress(),
		Results:      that.resultsFor(viewerID),
		WinningTeam:  that.WinningTeam,
	}

	for _, id := range that.PlayerIDs() {
		player := that.Players[id]

		item := PlayerView{
			ID:     player.ID,
			Name:   player.Name,
			Alive:  player.Alive,
			IsHost: that.IsHost(player.ID),
		}
		if that.RoleVisibleTo(viewerID, player.ID) {
			item.Role = player.Role
		}

		view.Players = append(view.Players, item)
	}

	if viewer, ok := that.Players[viewerID]; ok {
		if role, ok := LookupRole(viewer.Role); ok {
			view.ViewerRole = &role
		}

		view.RequiresAction = that.Status.RequiresAction(viewer.Role, viewer.Alive)

		if ns, ok := that.CurrentNamespace(); ok {
			view.HasActed = that.HasAction(ns, that.CurrentPhase, viewerID)
		}
	}

	return view
}

// resultsFor orders results by phase, night before day, hiding investigations made by others.
func (that *Session) resultsFor(viewerID string) []ResultView {
	var results []ResultView

	for _, ns := range []Namespace{NamespaceNight, NamespaceDay} {
		for _, r := range that.Results[ns] {
			item := r.Public()
			if r.Investigation != nil && r.Investigation.InvestigatorID == viewerID {
				item = r.Clone()
			}
			results = append(results, ResultView{Namespace: ns, Result: item})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Result.PhaseNumber != results[j].Result.PhaseNumber {
			return results[i].Result.PhaseNumber < results[j].Result.PhaseNumber
		}
		return results[i].Namespace == NamespaceNight && results[j].Namespace == NamespaceDay
	})

	return results
}
