package policy

// Engine answers permission queries against the static grant tables.
// Can is deterministic and side-effect free; callers may cache results for a
// render pass but must re-query after a role change, since role is always
// re-derived from storage rather than held here.
type Engine struct{}

// NewEngine constructs the policy engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Can reports whether role may perform action on module.
//
// Admin is allowed everything. The dashboard view is allowed for every role
// including RoleNone, so a routed user with no role lands somewhere instead
// of looping between guard redirects. RoleNone is denied everything else.
func (e *Engine) Can(role Role, module string, action Action) bool {
	if role == RoleAdmin {
		return true
	}
	if module == ModuleDashboard && action == ActionView {
		return true
	}
	grants, ok := roleGrants[role]
	if !ok {
		return false
	}
	allowed, ok := grants[module]
	if !ok {
		return false
	}
	_, ok = allowed[action]
	return ok
}

// Allowed returns the actions role may perform on module, in the canonical
// action order. Used by the permissions endpoint so generated CRUD screens
// can hide controls.
func (e *Engine) Allowed(role Role, module string) []Action {
	var out []Action
	for _, action := range Actions() {
		if e.Can(role, module, action) {
			out = append(out, action)
		}
	}
	return out
}
