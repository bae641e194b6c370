// internal/workflow/role.go
package workflow

import "fmt"

// Role is the account type chosen on the signup entry form.
type Role int

const (
	RoleStudent Role = iota
	RoleInstructor
	RoleAdministrator
	RoleLibrarian
	RoleInstructionalDesigner
	RoleOther
)

var roleNames = map[Role]string{
	RoleStudent:               "Student",
	RoleInstructor:            "Instructor",
	RoleAdministrator:         "Administrator",
	RoleLibrarian:             "Librarian",
	RoleInstructionalDesigner: "Instructional Designer",
	RoleOther:                 "Other",
}

// String returns the role's display name as the signup form shows it.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// NeedsReview reports whether signups with this role enter the manual
// review queue. Everyone but students does.
func (r Role) NeedsReview() bool {
	return r != RoleStudent
}

// HasVerificationFields reports whether the profile form shows the
// extra instructor verification inputs for this role.
func (r Role) HasVerificationFields() bool {
	return r == RoleInstructor
}

// ParseRole resolves a display name (case-sensitive, as rendered) to
// its role.
func ParseRole(name string) (Role, error) {
	for role, display := range roleNames {
		if display == name {
			return role, nil
		}
	}
	return RoleStudent, fmt.Errorf("unknown role %q", name)
}
