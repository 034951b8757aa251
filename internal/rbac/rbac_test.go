package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name     string
		role     Role
		relation Relation
		action   Action
		allow    bool
	}{
		{name: "admin without relation", role: RoleAdmin, relation: RelationNone, action: ActionDeleteFile, allow: true},
		{name: "owner without relation", role: RoleOwner, relation: RelationNone, action: ActionManageFiles, allow: true},
		{name: "superadmin view", role: RoleSuperAdmin, relation: RelationNone, action: ActionViewFiles, allow: true},
		{name: "member view", role: RoleMember, relation: RelationMember, action: ActionViewFiles, allow: true},
		{name: "member upload", role: RoleMember, relation: RelationMember, action: ActionUploadFile, allow: true},
		{name: "member delete", role: RoleMember, relation: RelationMember, action: ActionDeleteFile, allow: false},
		{name: "member adds folder", role: RoleMember, relation: RelationMember, action: ActionAddFolder, allow: true},
		{name: "leader manage", role: RoleLeader, relation: RelationLeader, action: ActionManageFiles, allow: true},
		{name: "outsider view", role: RoleMember, relation: RelationNone, action: ActionViewFiles, allow: false},
		{name: "leader role outside project", role: RoleLeader, relation: RelationNone, action: ActionViewFiles, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.relation, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q, %q) = %v, want %v", tc.role, tc.relation, tc.action, got, tc.allow)
			}
		})
	}
}

func TestIsAdminClass(t *testing.T) {
	cases := map[string]bool{
		"admin":      true,
		"Owner":      true,
		"superadmin": true,
		"leader":     false,
		"member":     false,
		"":           false,
	}
	for role, want := range cases {
		if got := IsAdminClass(role); got != want {
			t.Fatalf("IsAdminClass(%q) = %v, want %v", role, got, want)
		}
	}
}
