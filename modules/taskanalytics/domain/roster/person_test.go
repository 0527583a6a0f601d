package roster

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPerson_HasSuperior(t *testing.T) {
	require.False(t, Person{}.HasSuperior("ADMIN"))
	require.False(t, Person{ReportToID: "  "}.HasSuperior("ADMIN"))
	require.False(t, Person{ReportToID: "ADMIN"}.HasSuperior("ADMIN"))
	require.True(t, Person{ReportToID: "EMP-1"}.HasSuperior("ADMIN"))
	require.True(t, Person{ReportToID: "ADMIN"}.HasSuperior(""))
}

func TestManagers_KeepsOrder(t *testing.T) {
	persons := []Person{
		{ID: 1, Role: RoleEmployee},
		{ID: 2, Role: RoleManager},
		{ID: 3, Role: RoleHR},
		{ID: 4, Role: RoleManager},
	}
	got := Managers(persons)
	require.Len(t, got, 2)
	require.Equal(t, int64(2), got[0].ID)
	require.Equal(t, int64(4), got[1].ID)
}

func TestRole_Valid(t *testing.T) {
	require.True(t, RoleFrontDesk.Valid())
	require.False(t, Role("manager").Valid())
}
