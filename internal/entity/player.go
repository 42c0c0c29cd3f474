package entity

type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  RoleID `json:"role,omitempty"`
	Alive bool   `json:"alive"`
}

func NewPlayer(id, name string) *Player {
	return &Player{
		ID:    id,
		Name:  name,
		Alive: true,
	}
}

func (that *Player) Team() Team {
	return TeamOf(that.Role)
}

func (that *Player) IsMafia() bool {
	return that.Team() == TeamMafia
}

func (that *Player) HasRole() bool {
	return that.Role != ""
}

// Eliminate is one-way.
func (that *Player) Eliminate() {
	that.Alive = false
}
