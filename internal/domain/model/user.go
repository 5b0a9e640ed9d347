package model

// User is a player record. XP is the source of truth; Level is a cached
// value derived from XP and must always be recomputable from it.
type User struct {
	ID           string   `json:"user_id"`
	DisplayName  string   `json:"display_name,omitempty"`
	XP           int64    `json:"xp"`
	Level        int      `json:"level"`
	Achievements []string `json:"achievements"`
}

// NewUser returns a freshly signed-up user: no XP, level 1.
func NewUser(id, displayName string) User {
	return User{ID: id, DisplayName: displayName, XP: 0, Level: 1, Achievements: []string{}}
}

// HasAchievement reports whether the user already holds the achievement.
func (u *User) HasAchievement(id string) bool {
	for _, a := range u.Achievements {
		if a == id {
			return true
		}
	}
	return false
}

// AddAchievement adds id with set semantics. Returns false when the user
// already had it.
func (u *User) AddAchievement(id string) bool {
	if id == "" || u.HasAchievement(id) {
		return false
	}
	u.Achievements = append(u.Achievements, id)
	return true
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (u User) Clone() User {
	c := u
	c.Achievements = append([]string(nil), u.Achievements...)
	if c.Achievements == nil {
		c.Achievements = []string{}
	}
	return c
}
