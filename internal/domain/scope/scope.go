// Package scope defines the closed set of memory scopes and their search order.
package scope

import (
	"fmt"

	"github.com/engramlabs/engram/internal/domain"
)

// Scope is a named partition of memory by contextual breadth.
type Scope string

// The fixed scope set. No extension: anything else is a validation error.
const (
	Global    Scope = "global"
	Project   Scope = "project"
	Agent     Scope = "agent"
	Thread    Scope = "thread"
	Objective Scope = "objective"
	Artifact  Scope = "artifact"
)

// tierOrder is the fixed search priority, most specific first. Artifact is
// not part of the classic five-tier order and ranks after global: artifact
// events are only visible when that scope is requested explicitly.
var tierOrder = []Scope{Thread, Project, Objective, Agent, Global, Artifact}

var valid = map[Scope]int{}

func init() {
	for i, s := range tierOrder {
		valid[s] = i
	}
}

// Parse converts a string into a Scope or returns a validation error.
func Parse(s string) (Scope, error) {
	sc := Scope(s)
	if _, ok := valid[sc]; !ok {
		return "", fmt.Errorf("unknown scope %q: %w", s, domain.ErrValidation)
	}
	return sc, nil
}

// ParseSet converts strings into a deduplicated scope set.
func ParseSet(names []string) ([]Scope, error) {
	seen := make(map[Scope]struct{}, len(names))
	out := make([]Scope, 0, len(names))
	for _, n := range names {
		sc, err := Parse(n)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[sc]; dup {
			continue
		}
		seen[sc] = struct{}{}
		out = append(out, sc)
	}
	return out, nil
}

// DefaultTiers returns the search order used when no scopes are requested.
// Artifact is excluded; it must be asked for explicitly.
func DefaultTiers() []Scope {
	return TierOrder()[:len(tierOrder)-1]
}

// TierOrder returns the fixed search order.
func TierOrder() []Scope {
	out := make([]Scope, len(tierOrder))
	copy(out, tierOrder)
	return out
}

// TierRank returns the priority position of a scope (lower = higher priority).
func TierRank(s Scope) int {
	return valid[s]
}

// All returns every valid scope.
func All() []Scope {
	return TierOrder()
}

func (s Scope) String() string { return string(s) }
