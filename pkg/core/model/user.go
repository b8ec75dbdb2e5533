package model

import "time"

// UserRole is the top-level role of an account
type UserRole string

const (
	UserAdmin     UserRole = "ADMIN"
	UserVolunteer UserRole = "VOLUNTEER"
	UserClient    UserRole = "CLIENT"
)

// SubRole is an additional capability a volunteer may hold
type SubRole string

const (
	SubRoleTeamLead  SubRole = "TEAM_LEAD"
	SubRoleClinician SubRole = "CLINICIAN"
)

// User is the identity record returned by the identity lookup
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Role      UserRole  `json:"role"`
	SubRoles  []SubRole `json:"subRoles,omitempty"`
}

func (u *User) IsAdmin() bool {
	return u.Role == UserAdmin
}

func (u *User) IsVolunteer() bool {
	return u.Role == UserVolunteer
}

// HasSubRole reports whether the user holds the given sub-role capability
func (u *User) HasSubRole(sr SubRole) bool {
	for _, s := range u.SubRoles {
		if s == sr {
			return true
		}
	}
	return false
}

// CanHold reports whether the user may sign up for the given round role
func (u *User) CanHold(role SignupRole) bool {
	switch role {
	case RoleVolunteer:
		return u.IsVolunteer()
	case RoleTeamLead:
		return u.HasSubRole(SubRoleTeamLead)
	case RoleClinician:
		return u.HasSubRole(SubRoleClinician)
	}
	return false
}

// NotificationKind selects the message template for a notification
type NotificationKind string

const (
	NotifySignupConfirmation NotificationKind = "signup_confirmation"
	NotifyLotterySelected    NotificationKind = "lottery_selected"
	NotifyRoundCanceled      NotificationKind = "round_canceled"
	NotifyRoundReminder      NotificationKind = "round_reminder"
)

// NotificationData carries the round details rendered into a notification
type NotificationData struct {
	RoundTitle string
	StartTime  time.Time
	Location   string
	Status     SignupStatus
	Role       SignupRole
}
