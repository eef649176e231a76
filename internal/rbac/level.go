package rbac

import "fmt"

// AccessLevel is the ordered capability rank granted for a scope or field.
// Comparisons must use the numeric rank; the zero value grants nothing.
type AccessLevel int

const (
	// LevelNone grants no access. Default when no rule matches.
	LevelNone AccessLevel = iota
	// LevelView grants read-only access.
	LevelView
	// LevelEdit grants read and write access.
	LevelEdit
	// LevelFull grants unrestricted access, including delete.
	LevelFull
)

var levelNames = map[AccessLevel]string{
	LevelNone: "none",
	LevelView: "view",
	LevelEdit: "edit",
	LevelFull: "full",
}

// String returns the lowercase label for the level.
func (l AccessLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("access_level(%d)", int(l))
}

// Valid reports whether the level is one of the defined ranks.
func (l AccessLevel) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

// AtLeast reports whether the level grants at least the required rank.
func (l AccessLevel) AtLeast(required AccessLevel) bool {
	return l >= required
}

// MinLevel returns the lower of two levels. Field rules restrict, never
// escalate, so the effective field grant is min(scope, field).
func MinLevel(a, b AccessLevel) AccessLevel {
	if a < b {
		return a
	}
	return b
}

// ParseAccessLevel maps a label back to its level.
func ParseAccessLevel(s string) (AccessLevel, error) {
	for level, name := range levelNames {
		if name == s {
			return level, nil
		}
	}
	return LevelNone, fmt.Errorf("rbac: unknown access level %q", s)
}
