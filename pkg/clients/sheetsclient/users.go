package sheetsclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/streetmed/rounds/pkg/core/model"
)

// Expected column names in the users sheet
var userFields = []string{
	"Unique ID",
	"Username",
	"First name",
	"Last name",
	"Email",
	"Phone",
	"Role",
	"Sub-roles",
}

// ListUsers retrieves and parses the user roster
func (c *Client) ListUsers(ctx context.Context) ([]model.User, error) {
	values, err := c.GetValues(ctx, c.spreadsheetID, c.usersTab)
	if err != nil {
		return nil, fmt.Errorf("failed to get user data: %w", err)
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("spreadsheet is empty")
	}

	users, err := parseUsers(values)
	if err != nil {
		return nil, fmt.Errorf("failed to parse users: %w", err)
	}

	return users, nil
}

// parseUsers converts raw spreadsheet data into User structs.
// The header row may order columns freely; rows without an id are skipped.
func parseUsers(raw [][]interface{}) ([]model.User, error) {
	if len(raw) < 1 {
		return nil, fmt.Errorf("no header row found")
	}

	fieldIndexes := make(map[string]int)
	headerRow := raw[0]

	for _, field := range userFields {
		index := -1
		for i, cell := range headerRow {
			if cellStr, ok := cell.(string); ok && strings.TrimSpace(cellStr) == field {
				index = i
				break
			}
		}
		if index == -1 {
			return nil, fmt.Errorf("missing required field in header: %s", field)
		}
		fieldIndexes[field] = index
	}

	getField := func(field string, row []interface{}) string {
		index := fieldIndexes[field]
		if index >= len(row) {
			return ""
		}
		if str, ok := row[index].(string); ok {
			return strings.TrimSpace(str)
		}
		return ""
	}

	users := make([]model.User, 0, len(raw)-1)
	seen := make(map[string]int)
	for i := 1; i < len(raw); i++ {
		row := raw[i]

		id := getField("Unique ID", row)
		if id == "" {
			continue
		}
		if prev, ok := seen[id]; ok {
			return nil, fmt.Errorf("duplicate user id %s in rows %d and %d", id, prev, i)
		}
		seen[id] = i

		role := model.UserRole(strings.ToUpper(getField("Role", row)))
		if role != model.UserAdmin && role != model.UserVolunteer && role != model.UserClient {
			return nil, fmt.Errorf("invalid role for user in row %d: %q", i, role)
		}

		subRoles, err := parseSubRoles(getField("Sub-roles", row))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		users = append(users, model.User{
			ID:        id,
			Username:  getField("Username", row),
			FirstName: getField("First name", row),
			LastName:  getField("Last name", row),
			Email:     getField("Email", row),
			Phone:     getField("Phone", row),
			Role:      role,
			SubRoles:  subRoles,
		})
	}

	return users, nil
}

// parseSubRoles splits a comma separated cell like "TEAM_LEAD, clinician"
func parseSubRoles(cell string) ([]model.SubRole, error) {
	if cell == "" {
		return nil, nil
	}

	var subRoles []model.SubRole
	for _, part := range strings.Split(cell, ",") {
		name := strings.ToUpper(strings.TrimSpace(part))
		name = strings.ReplaceAll(name, " ", "_")
		if name == "" {
			continue
		}
		sr := model.SubRole(name)
		if sr != model.SubRoleTeamLead && sr != model.SubRoleClinician {
			return nil, fmt.Errorf("invalid sub-role %q", part)
		}
		subRoles = append(subRoles, sr)
	}
	return subRoles, nil
}
