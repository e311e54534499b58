// Package policy implements the role-permission matrix for dashboard modules.
package policy

import (
	"encoding/json"
	"strings"
)

// Role is a closed set of tenant dashboard roles. RoleNone means the profile
// carried no recognizable role; it is distinct from every enumerated role.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleTeacher    Role = "teacher"
	RoleAccountant Role = "accountant"
	// RoleNone denies everything except the dashboard view.
	RoleNone Role = ""
)

// Action enumerates the operations a module can be subjected to.
type Action string

const (
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionPublish Action = "publish"
	ActionExport  Action = "export"
)

// Actions lists every action.
func Actions() []Action {
	return []Action{ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionPublish, ActionExport}
}

// Module identifiers. The namespace is flat; modules carry no hierarchy.
const (
	ModuleDashboard     = "dashboard"
	ModuleStudents      = "students"
	ModuleStaff         = "staff"
	ModuleClasses       = "classes"
	ModuleAttendance    = "attendance"
	ModuleExams         = "exams"
	ModuleAssessments   = "assessments"
	ModuleFeeManagement = "fee-management"
	ModulePayments      = "payments"
	ModuleReports       = "reports"
	ModuleSettings      = "settings"
)

// Modules lists every known module.
func Modules() []string {
	return []string{
		ModuleDashboard,
		ModuleStudents,
		ModuleStaff,
		ModuleClasses,
		ModuleAttendance,
		ModuleExams,
		ModuleAssessments,
		ModuleFeeManagement,
		ModulePayments,
		ModuleReports,
		ModuleSettings,
	}
}

// ParseRole normalizes an untrusted role string into the closed enum.
// Anything unrecognized, including the empty string, maps to RoleNone.
func ParseRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(RoleAdmin):
		return RoleAdmin
	case string(RoleTeacher):
		return RoleTeacher
	case string(RoleAccountant):
		return RoleAccountant
	default:
		return RoleNone
	}
}

// RoleFromProfile extracts and validates the role field from a persisted
// profile blob. The blob crosses a trust boundary: it was written by the
// upstream backend and stored client-side, so nothing about its shape is
// assumed beyond best-effort JSON.
func RoleFromProfile(profile []byte) Role {
	if len(profile) == 0 {
		return RoleNone
	}
	var payload struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal(profile, &payload); err != nil {
		return RoleNone
	}
	return ParseRole(payload.Role)
}
