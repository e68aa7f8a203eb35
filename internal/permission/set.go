package permission

import "strings"

// Set is a list of granted permissions where entries starting with '-'
// deny. A matching deny wins over any matching grant.
type Set []string

// Has reports whether the set allows perm under engine e.
func (s Set) Has(e *Engine, perm string) bool {
	if perm == "" {
		return true
	}
	allowed := false
	for _, g := range s {
		if !e.Allows(g, perm) {
			continue
		}
		if strings.HasPrefix(g, "-") {
			return false
		}
		allowed = true
	}
	return allowed
}

// Grants returns the positive entries, the form expected by Engine.Any.
func (s Set) Grants() []string {
	out := make([]string, 0, len(s))
	for _, g := range s {
		if !strings.HasPrefix(g, "-") {
			out = append(out, g)
		}
	}
	return out
}
