package roster

import "strings"

type Role string

const (
	RoleAdmin     Role = "Admin"
	RoleHR        Role = "HR"
	RoleManager   Role = "Manager"
	RoleEmployee  Role = "Employee"
	RoleFrontDesk Role = "Front Desk"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleHR, RoleManager, RoleEmployee, RoleFrontDesk:
		return true
	default:
		return false
	}
}

// Person is one roster entry. ReportToID holds the EmpID of the direct
// superior; it is a back-reference, empty when the person reports to nobody.
type Person struct {
	ID         int64  `json:"id" yaml:"id"`
	EmpID      string `json:"empid" yaml:"empid"`
	Name       string `json:"name" yaml:"name"`
	Role       Role   `json:"role" yaml:"role"`
	ReportToID string `json:"report_to_id,omitempty" yaml:"report_to_id,omitempty"`
}

func (p Person) IsManager() bool  { return p.Role == RoleManager }
func (p Person) IsEmployee() bool { return p.Role == RoleEmployee }

// HasSuperior reports whether ReportToID names someone other than the sentinel.
func (p Person) HasSuperior(sentinel string) bool {
	ref := strings.TrimSpace(p.ReportToID)
	if ref == "" {
		return false
	}
	return sentinel == "" || ref != sentinel
}

// Managers filters persons down to role Manager, keeping input order.
func Managers(persons []Person) []Person {
	out := make([]Person, 0, len(persons))
	for _, p := range persons {
		if p.IsManager() {
			out = append(out, p)
		}
	}
	return out
}

func IndexByID(persons []Person) map[int64]Person {
	out := make(map[int64]Person, len(persons))
	for _, p := range persons {
		out[p.ID] = p
	}
	return out
}
