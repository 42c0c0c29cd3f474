package entity

const (
	MinPlayers = 4
	MaxPlayers = 12
)

type Team string

const (
	TeamMafia    Team = "MAFIA"
	TeamCitizens Team = "CITIZENS"
)

type RoleID string

const (
	RoleMafioso   RoleID = "MAFIOSO"
	RolePaesano   RoleID = "PAESANO"
	RoleIspettore RoleID = "ISPETTORE"
	RoleSgarrista RoleID = "SGARRISTA"
	RolePrete     RoleID = "IL_PRETE"
)

// Role is an immutable catalog entry. NightAction is empty for roles that sleep through the night.
type Role struct {
	ID          RoleID     `json:"id"`
	Team        Team       `json:"team"`
	NightAction ActionKind `json:"night_action,omitempty"`
	DisplayName string     `json:"display_name"`
	Description string     `json:"description"`
}

var roles = map[RoleID]Role{
	RoleMafioso: {
		ID:          RoleMafioso,
		Team:        TeamMafia,
		NightAction: ActionKill,
		DisplayName: "Mafioso",
		Description: "Works with other Mafiosi to eliminate citizens each night",
	},
	RolePaesano: {
		ID:          RolePaesano,
		Team:        TeamCitizens,
		DisplayName: "Paesano",
		Description: "Regular citizen trying to survive and vote during the day",
	},
	RoleIspettore: {
		ID:          RoleIspettore,
		Team:        TeamCitizens,
		NightAction: ActionInvestigate,
		DisplayName: "Ispettore",
		Description: "Can investigate one player each night to determine if they are Mafia",
	},
	RoleSgarrista: {
		ID:          RoleSgarrista,
		Team:        TeamCitizens,
		NightAction: ActionProtect,
		DisplayName: "Sgarrista",
		Description: "Can protect one player each night from elimination",
	},
	RolePrete: {
		ID:          RolePrete,
		Team:        TeamCitizens,
		NightAction: ActionBless,
		DisplayName: "Il Prete",
		Description: "Can bless a player and protect them from elimination",
	},
}

// distribution lists how many of each role a table of a given size gets.
type distribution struct {
	mafiosi, paesani, ispettori, sgarristi, preti int
}

var distributions = map[int]distribution{
	4:  {mafiosi: 1, paesani: 2, ispettori: 1},
	5:  {mafiosi: 1, paesani: 3, ispettori: 1},
	6:  {mafiosi: 2, paesani: 3, ispettori: 1},
	7:  {mafiosi: 2, paesani: 3, ispettori: 1, sgarristi: 1},
	8:  {mafiosi: 2, paesani: 4, ispettori: 1, sgarristi: 1},
	9:  {mafiosi: 3, paesani: 4, ispettori: 1, sgarristi: 1},
	10: {mafiosi: 3, paesani: 4, ispettori: 1, sgarristi: 1, preti: 1},
	11: {mafiosi: 3, paesani: 5, ispettori: 1, sgarristi: 1, preti: 1},
	12: {mafiosi: 4, paesani: 5, ispettori: 1, sgarristi: 1, preti: 1},
}

// LookupRole returns the catalog entry for id.
func LookupRole(id RoleID) (Role, bool) {
	role, ok := roles[id]
	return role, ok
}

// TeamOf returns the team of a role, or "" for unknown roles.
func TeamOf(id RoleID) Team {
	return roles[id].Team
}

// RolesForPlayerCount returns the role multiset for a table of n players, in catalog order.
// Counts below MinPlayers fall back to the MinPlayers table.
func RolesForPlayerCount(n int) []RoleID {
	dist, ok := distributions[n]
	if !ok {
		if n < MinPlayers {
			dist = distributions[MinPlayers]
		} else {
			dist = distributions[MaxPlayers]
		}
	}

	result := make([]RoleID, 0, n)
	result = appendN(result, RoleMafioso, dist.mafiosi)
	result = appendN(result, RolePaesano, dist.paesani)
	result = appendN(result, RoleIspettore, dist.ispettori)
	result = appendN(result, RoleSgarrista, dist.sgarristi)
	result = appendN(result, RolePrete, dist.preti)

	return result
}

func appendN(list []RoleID, id RoleID, n int) []RoleID {
	for range n {
		list = append(list, id)
	}
	return list
}

// ValidActionsFor lists what a role may submit. Every role can vote.
func ValidActionsFor(id RoleID) []ActionKind {
	role, ok := roles[id]
	if !ok {
		return nil
	}

	if role.NightAction == "" {
		return []ActionKind{ActionVote}
	}

	return []ActionKind{role.NightAction, ActionVote}
}

// ValidRolesFor lists the roles that may submit kind.
func ValidRolesFor(kind ActionKind) []RoleID {
	var result []RoleID
	for _, id := range roleOrder {
		if kind == ActionVote || roles[id].NightAction == kind {
			result = append(result, id)
		}
	}
	return result
}

// CanPerform reports whether a role may submit kind.
func CanPerform(id RoleID, kind ActionKind) bool {
	for _, allowed := range ValidActionsFor(id) {
		if allowed == kind {
			return true
		}
	}
	return false
}

var roleOrder = []RoleID{RoleMafioso, RolePaesano, RoleIspettore, RoleSgarrista, RolePrete}
