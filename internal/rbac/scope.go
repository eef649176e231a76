package rbac

import "fmt"

// Scope identifies an external resource subject to access control.
// A scope can be any concept: a database table, a REST endpoint, a UI
// element. Callers decide what a scope stands for and check the
// resolved level before acting on it.
type Scope int

const (
	// ScopeDocuments covers the document records and their content.
	ScopeDocuments Scope = iota + 1
	// ScopeDocumentAudit covers the per-document audit trail.
	ScopeDocumentAudit
	// ScopeActors covers actor account administration.
	ScopeActors
	// ScopeRoles covers role and rule administration.
	ScopeRoles
	// ScopeDashboard covers the operator dashboard surface.
	ScopeDashboard
	// ScopeSystem covers system-level maintenance operations.
	ScopeSystem
)

var scopeNames = map[Scope]string{
	ScopeDocuments:     "documents",
	ScopeDocumentAudit: "document_audit",
	ScopeActors:        "actors",
	ScopeRoles:         "roles",
	ScopeDashboard:     "dashboard",
	ScopeSystem:        "system",
}

// AllScopes returns every defined scope in declaration order.
func AllScopes() []Scope {
	return []Scope{
		ScopeDocuments,
		ScopeDocumentAudit,
		ScopeActors,
		ScopeRoles,
		ScopeDashboard,
		ScopeSystem,
	}
}

// String returns the stable name for the scope.
func (s Scope) String() string {
	if name, ok := scopeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

// Valid reports whether the scope is one of the defined identifiers.
func (s Scope) Valid() bool {
	_, ok := scopeNames[s]
	return ok
}

// ParseScope maps a stable name back to its scope.
func ParseScope(name string) (Scope, error) {
	for scope, n := range scopeNames {
		if n == name {
			return scope, nil
		}
	}
	return 0, fmt.Errorf("rbac: unknown scope %q", name)
}
