package model

import "time"

// RoundStatus is the lifecycle state of a round
type RoundStatus string

const (
	RoundScheduled RoundStatus = "SCHEDULED"
	RoundCanceled  RoundStatus = "CANCELED"
	RoundCompleted RoundStatus = "COMPLETED"
)

func (s RoundStatus) IsValid() bool {
	return s == RoundScheduled || s == RoundCanceled || s == RoundCompleted
}

// IsTerminal reports whether the round accepts no further signups or status changes
func (s RoundStatus) IsTerminal() bool {
	return s == RoundCanceled || s == RoundCompleted
}

// SignupRole is the role a volunteer holds on a round
type SignupRole string

const (
	RoleVolunteer SignupRole = "VOLUNTEER"
	RoleTeamLead  SignupRole = "TEAM_LEAD"
	RoleClinician SignupRole = "CLINICIAN"
)

func (r SignupRole) IsValid() bool {
	return r == RoleVolunteer || r == RoleTeamLead || r == RoleClinician
}

// IsExclusive reports whether at most one confirmed holder of the role may exist per round
func (r SignupRole) IsExclusive() bool {
	return r == RoleTeamLead || r == RoleClinician
}

// SignupStatus is the admission state of a signup
type SignupStatus string

const (
	SignupConfirmed  SignupStatus = "CONFIRMED"
	SignupWaitlisted SignupStatus = "WAITLISTED"
	SignupRejected   SignupStatus = "REJECTED"
	// SignupCanceled is only set by the round cancellation cascade
	SignupCanceled SignupStatus = "CANCELED"
)

// Round represents a scheduled outreach event
type Round struct {
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	Description     string      `json:"description,omitempty"`
	StartTime       time.Time   `json:"startTime"`
	EndTime         time.Time   `json:"endTime"`
	Location        string      `json:"location"`
	MaxParticipants int         `json:"maxParticipants"`
	TeamLeadID      *string     `json:"teamLeadId,omitempty"`
	ClinicianID     *string     `json:"clinicianId,omitempty"`
	Status          RoundStatus `json:"status"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// ExclusiveHolder returns the user currently holding the given exclusive role, if any
func (r *Round) ExclusiveHolder(role SignupRole) *string {
	switch role {
	case RoleTeamLead:
		return r.TeamLeadID
	case RoleClinician:
		return r.ClinicianID
	}
	return nil
}

// SetExclusiveHolder sets or clears (userID == nil) the field backing an exclusive role
func (r *Round) SetExclusiveHolder(role SignupRole, userID *string) {
	switch role {
	case RoleTeamLead:
		r.TeamLeadID = userID
	case RoleClinician:
		r.ClinicianID = userID
	}
}

// Signup represents one volunteer's claim on a round
type Signup struct {
	ID            string       `json:"id"`
	RoundID       string       `json:"roundId"`
	UserID        string       `json:"userId"`
	Role          SignupRole   `json:"role"`
	Status        SignupStatus `json:"status"`
	SignupTime    time.Time    `json:"signupTime"`
	LotteryNumber *int         `json:"lotteryNumber,omitempty"` // only set while waitlisted
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// IsConfirmedVolunteer reports whether the signup counts against round capacity
func (s *Signup) IsConfirmedVolunteer() bool {
	return s.Role == RoleVolunteer && s.Status == SignupConfirmed
}
