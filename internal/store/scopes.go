package store

import (
	"fmt"
	"sort"
	"strings"
)

// Scope is a bitmask over the closed permission alphabet. Grant
// evaluation is strict subset containment: no scope implies another,
// so repo:write alone does not confer repo:read.
type Scope uint32

const (
	ScopeNamespaceRead  Scope = 1 << 0
	ScopeNamespaceWrite Scope = 1 << 1
	ScopeRepoRead       Scope = 1 << 2
	ScopeRepoWrite      Scope = 1 << 3
	ScopeRepoAdmin      Scope = 1 << 4

	// ScopeAll is what namespace ownership and the admin principal
	// confer.
	ScopeAll = ScopeNamespaceRead | ScopeNamespaceWrite | ScopeRepoRead | ScopeRepoWrite | ScopeRepoAdmin
)

var scopeStrings = map[Scope]string{
	ScopeNamespaceRead:  "namespace:read",
	ScopeNamespaceWrite: "namespace:write",
	ScopeRepoRead:       "repo:read",
	ScopeRepoWrite:      "repo:write",
	ScopeRepoAdmin:      "repo:admin",
}

var stringToScope = map[string]Scope{
	"namespace:read":  ScopeNamespaceRead,
	"namespace:write": ScopeNamespaceWrite,
	"repo:read":       ScopeRepoRead,
	"repo:write":      ScopeRepoWrite,
	"repo:admin":      ScopeRepoAdmin,
}

// Has returns true if the mask contains every bit of required.
func (s Scope) Has(required Scope) bool {
	return s&required == required
}

// Strings renders the mask as sorted scope strings.
func (s Scope) Strings() []string {
	var out []string
	for bit, str := range scopeStrings {
		if s.Has(bit) {
			out = append(out, str)
		}
	}
	sort.Strings(out)
	return out
}

func (s Scope) String() string {
	return strings.Join(s.Strings(), ", ")
}

// ParseScope converts a single scope string to its bit.
func ParseScope(s string) (Scope, error) {
	scope, ok := stringToScope[s]
	if !ok {
		return 0, fmt.Errorf("unknown scope: %s", s)
	}
	return scope, nil
}

// ParseScopes converts scope strings to a combined mask, rejecting
// anything outside the alphabet.
func ParseScopes(strs []string) (Scope, error) {
	var result Scope
	for _, s := range strs {
		scope, err := ParseScope(s)
		if err != nil {
			return 0, err
		}
		result |= scope
	}
	return result, nil
}
