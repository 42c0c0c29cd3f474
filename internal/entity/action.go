package entity

type ActionKind string

const (
	ActionKill        ActionKind = "KILL"
	ActionInvestigate ActionKind = "INVESTIGATE"
	ActionProtect     ActionKind = "PROTECT"
	ActionBless       ActionKind = "BLESS"
	ActionVote        ActionKind = "VOTE"
)

// Namespace separates night actions from day votes; both are keyed by phase number.
type Namespace string

const (
	NamespaceNight Namespace = "night"
	NamespaceDay   Namespace = "day"
)

func (that ActionKind) IsValid() bool {
	switch that {
	case ActionKill, ActionInvestigate, ActionProtect, ActionBless, ActionVote:
		return true
	default:
		return false
	}
}

func (that ActionKind) Namespace() Namespace {
	if that == ActionVote {
		return NamespaceDay
	}
	return NamespaceNight
}

// AllowsSelfTarget is true only for the protective actions.
func (that ActionKind) AllowsSelfTarget() bool {
	return that == ActionProtect || that == ActionBless
}

func (that ActionKind) IsProtection() bool {
	return that.AllowsSelfTarget()
}

// Action is immutable once accepted.
type Action struct {
	Kind        ActionKind `json:"kind"`
	SourceID    string     `json:"source_id"`
	TargetID    string     `json:"target_id"`
	PhaseNumber int        `json:"phase_number"`
}

func (that Action) Namespace() Namespace {
	return that.Kind.Namespace()
}
