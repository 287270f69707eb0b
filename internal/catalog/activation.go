package catalog

import (
	"inproc/internal/domain"
)

// ActivationOverride decides the initial active flag for a template instance
// when the default prerequisite rule does not apply.
type ActivationOverride func(req domain.Request) bool

// overrides is keyed by template. A template without an entry follows the
// default rule: active iff it has no prerequisites.
var overrides = map[TemplateID]ActivationOverride{
	// Employees transferring in already hold a CAC, so the item starts
	// actionable even though Installation In-processing is its prerequisite.
	ObtainCACGov: func(req domain.Request) bool {
		return req.IsNewCivMil == "no"
	},
}

// InitialActive reports whether a fresh instance of t starts active for the
// given request.
func InitialActive(t Template, req domain.Request) bool {
	if fn, ok := overrides[t.ID]; ok {
		return fn(req)
	}
	return len(t.Prereqs) == 0
}
