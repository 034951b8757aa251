package rbac

import "strings"

type Role string
type Action string

const (
	RoleMember     Role = "member"
	RoleLeader     Role = "leader"
	RoleAdmin      Role = "admin"
	RoleOwner      Role = "owner"
	RoleSuperAdmin Role = "superadmin"
)

// Project-scoped relation of a user to a project.
type Relation string

const (
	RelationNone   Relation = "none"
	RelationMember Relation = "member"
	RelationLeader Relation = "leader"
)

const (
	ActionViewFiles   Action = "files:view"
	ActionUploadFile  Action = "files:upload"
	ActionAddFolder   Action = "folders:create"
	ActionDeleteFile  Action = "files:delete"
	ActionManageFiles Action = "folders:manage"
)

// AdminRoles lists the roles that receive admin notifications.
func AdminRoles() []string {
	return []string{string(RoleAdmin), string(RoleOwner), string(RoleSuperAdmin)}
}

func IsAdminClass(role string) bool {
	switch Normalize(role) {
	case RoleAdmin, RoleOwner, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// Can answers whether a user with role, standing in relation to a project,
// may perform action on it.
func Can(role Role, relation Relation, action Action) bool {
	if IsAdminClass(string(role)) {
		return true
	}
	switch action {
	case ActionViewFiles, ActionUploadFile, ActionAddFolder:
		return relation == RelationLeader || relation == RelationMember
	case ActionDeleteFile, ActionManageFiles:
		return relation == RelationLeader
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(role))); r {
	case RoleMember, RoleLeader, RoleAdmin, RoleOwner, RoleSuperAdmin:
		return r
	default:
		return RoleMember
	}
}
