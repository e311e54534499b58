package policy

// actionSet is a set of allowed actions for one module.
type actionSet map[Action]struct{}

func actions(list ...Action) actionSet {
	set := make(actionSet, len(list))
	for _, a := range list {
		set[a] = struct{}{}
	}
	return set
}

// Per-role grants. Admin is not listed: it bypasses the tables entirely.
// Teacher never receives delete; publish exists only on the assessment
// modules and only for teacher. Accountant is confined to the financial
// modules plus read-only people lookup and never publishes.
var roleGrants = map[Role]map[string]actionSet{
	RoleTeacher: {
		ModuleDashboard:   actions(ActionView),
		ModuleStudents:    actions(ActionView, ActionUpdate),
		ModuleClasses:     actions(ActionView),
		ModuleAttendance:  actions(ActionView, ActionCreate, ActionUpdate, ActionExport),
		ModuleExams:       actions(ActionView, ActionCreate, ActionUpdate, ActionPublish),
		ModuleAssessments: actions(ActionView, ActionCreate, ActionUpdate, ActionPublish),
		ModuleReports:     actions(ActionView),
	},
	RoleAccountant: {
		ModuleDashboard:     actions(ActionView),
		ModuleStudents:      actions(ActionView),
		ModuleStaff:         actions(ActionView),
		ModuleFeeManagement: actions(ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionExport),
		ModulePayments:      actions(ActionView, ActionCreate, ActionExport),
		ModuleReports:       actions(ActionView, ActionExport),
	},
}
