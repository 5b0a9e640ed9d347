package model

// DefaultMaxTeamMembers bounds team size when a team does not set its own limit.
const DefaultMaxTeamMembers = 10

// Team groups users. Members has set semantics; order is irrelevant.
type Team struct {
	ID         string   `json:"team_id"`
	Name       string   `json:"name,omitempty"`
	Members    []string `json:"members"`
	MaxMembers int      `json:"max_members"`
}

// HasMember reports whether userID belongs to the team.
func (t *Team) HasMember(userID string) bool {
	for _, m := range t.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Capacity returns the effective member limit.
func (t *Team) Capacity() int {
	if t.MaxMembers > 0 {
		return t.MaxMembers
	}
	return DefaultMaxTeamMembers
}

// Clone returns a deep copy.
func (t Team) Clone() Team {
	c := t
	c.Members = append([]string(nil), t.Members...)
	if c.Members == nil {
		c.Members = []string{}
	}
	return c
}
