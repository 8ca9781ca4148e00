package rbac

const (
	PermScaleView     = "scale:view"
	PermGradeCompute  = "grade:compute"
	PermGradeViewOwn  = "grade:view-own"
	PermGradeViewAll  = "grade:view-all"
	PermRollupWrite   = "rollup:write"
	PermRollupSync    = "rollup:sync"
	PermSyncStatusAll = "rollup:status"
)

// RolePermissions is the default policy. "service" is the LMS gateway
// pushing rollups.
var RolePermissions = map[string][]string{
	"student": {
		PermScaleView,
		PermGradeCompute,
		PermGradeViewOwn,
	},
	"teacher": {
		PermScaleView,
		"grade:*",
		PermRollupSync,
		PermSyncStatusAll,
	},
	"service": {
		PermScaleView,
		"rollup:*",
	},
	"admin": {
		"*",
	},
}
