package domain

type GroupID int

// Group is a set of session codes eligible to be joined together.
// The advertising flag marks discoverability. Members is ordered:
// append on join, positional remove on leave.
//
// Invariants the coordinator maintains:
//   - a code appears in at most one group at a time
//   - a group with zero members is removed immediately
type Group struct {
	ID          GroupID
	Advertising bool
	Members     []string
}

func NewGroup(id GroupID, code string) *Group {
	return &Group{
		ID:      id,
		Members: []string{code},
	}
}

func (g *Group) Contains(code string) bool {
	for _, m := range g.Members {
		if m == code {
			return true
		}
	}
	return false
}

// RemoveMember deletes code from the member list, preserving order.
// Reports whether the code was present.
func (g *Group) RemoveMember(code string) bool {
	for i, m := range g.Members {
		if m == code {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			return true
		}
	}
	return false
}

func (g *Group) Empty() bool {
	return len(g.Members) == 0
}
