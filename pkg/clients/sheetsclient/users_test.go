package sheetsclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streetmed/rounds/pkg/core/model"
)

var header = []interface{}{"Unique ID", "Username", "First name", "Last name", "Email", "Phone", "Role", "Sub-roles"}

func TestParseUsers(t *testing.T) {
	raw := [][]interface{}{
		header,
		{"u1", "alice", "Alice", "Smith", "alice@example.com", "555-0101", "VOLUNTEER", "TEAM_LEAD, clinician"},
		{"u2", "bob", "Bob", "Jones", "bob@example.com", "", "admin", ""},
		{"", "", "", "", "", "", "", ""},
	}

	users, err := parseUsers(raw)
	require.NoError(t, err)
	require.Len(t, users, 2)

	assert.Equal(t, "u1", users[0].ID)
	assert.Equal(t, model.UserVolunteer, users[0].Role)
	assert.Equal(t, []model.SubRole{model.SubRoleTeamLead, model.SubRoleClinician}, users[0].SubRoles)
	assert.True(t, users[0].CanHold(model.RoleClinician))

	assert.Equal(t, model.UserAdmin, users[1].Role)
	assert.Empty(t, users[1].SubRoles)
}

func TestParseUsers_ShortRowHasNoRole(t *testing.T) {
	raw := [][]interface{}{
		header,
		{"u3", "carol", "Carol"},
	}

	_, err := parseUsers(raw)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid role")
}

func TestParseUsers_ColumnOrderIndependent(t *testing.T) {
	raw := [][]interface{}{
		{"Role", "Sub-roles", "Email", "Phone", "Last name", "First name", "Username", "Unique ID"},
		{"VOLUNTEER", "", "dan@example.com", "", "Brown", "Dan", "dan", "u9"},
	}

	users, err := parseUsers(raw)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u9", users[0].ID)
	assert.Equal(t, "dan@example.com", users[0].Email)
}

func TestParseUsers_MissingHeader(t *testing.T) {
	_, err := parseUsers([][]interface{}{{"Unique ID", "Email"}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing required field in header")
}

func TestParseUsers_DuplicateID(t *testing.T) {
	raw := [][]interface{}{
		header,
		{"u1", "a", "A", "", "", "", "VOLUNTEER", ""},
		{"u1", "b", "B", "", "", "", "VOLUNTEER", ""},
	}
	_, err := parseUsers(raw)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate user id")
}

func TestParseUsers_InvalidSubRole(t *testing.T) {
	raw := [][]interface{}{
		header,
		{"u1", "a", "A", "", "", "", "VOLUNTEER", "PILOT"},
	}
	_, err := parseUsers(raw)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sub-role")
}
