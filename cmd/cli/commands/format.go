package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/streetmed/rounds/pkg/core/model"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorDim    = "\033[2m"
)

const (
	dateTimeLayout = "2006-01-02 15:04"
	dateLayout     = "2006-01-02"
)

// parseDateTime accepts "2006-01-02 15:04" in local time or RFC3339
func parseDateTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dateTimeLayout, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, expected %q or RFC3339", value, dateTimeLayout)
	}
	return t, nil
}

func parseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected %q", value, dateLayout)
	}
	return t, nil
}

// parseRole accepts TEAM_LEAD, team_lead and team-lead
func parseRole(value string) (model.SignupRole, error) {
	role := model.SignupRole(strings.ToUpper(strings.ReplaceAll(value, "-", "_")))
	if !role.IsValid() {
		return "", fmt.Errorf("unknown role %q, expected volunteer, team-lead or clinician", value)
	}
	return role, nil
}

// capacityColor is green while plenty of places are left, yellow when
// at most a quarter (or one) remains and red when the round is full
func capacityColor(confirmed, max int, green, yellow, red string) string {
	left := max - confirmed
	switch {
	case left <= 0:
		return red
	case left == 1 || left*4 <= max:
		return yellow
	default:
		return green
	}
}

func holder(id *string) string {
	if id == nil {
		return colorDim + "none" + colorReset
	}
	return *id
}

func printRound(r *model.Round) {
	fmt.Printf("Round ID:    %s\n", r.ID)
	fmt.Printf("Title:       %s\n", r.Title)
	fmt.Printf("When:        %s - %s\n", r.StartTime.Local().Format("Mon 2006-01-02 15:04"), r.EndTime.Local().Format("15:04"))
	fmt.Printf("Location:    %s\n", r.Location)
	fmt.Printf("Capacity:    %d\n", r.MaxParticipants)
	fmt.Printf("Team lead:   %s\n", holder(r.TeamLeadID))
	fmt.Printf("Clinician:   %s\n", holder(r.ClinicianID))
	fmt.Printf("Status:      %s\n\n", r.Status)
}

func printRoundTable(rounds []model.Round) {
	if len(rounds) == 0 {
		fmt.Println("No rounds found.")
		return
	}
	fmt.Printf("%-36s  %-16s  %-10s  %-3s  %s\n", "ID", "START", "STATUS", "MAX", "TITLE")
	for _, r := range rounds {
		fmt.Printf("%-36s  %-16s  %-10s  %3d  %s\n",
			r.ID, r.StartTime.Local().Format(dateTimeLayout), r.Status, r.MaxParticipants, r.Title)
	}
	fmt.Println()
}

func printSignup(s *model.Signup) {
	fmt.Printf("Signup ID:   %s\n", s.ID)
	fmt.Printf("Round ID:    %s\n", s.RoundID)
	fmt.Printf("User:        %s\n", s.UserID)
	fmt.Printf("Role:        %s\n", s.Role)
	fmt.Printf("Status:      %s\n", s.Status)
	if s.LotteryNumber != nil {
		fmt.Printf("Lottery no.: %d\n", *s.LotteryNumber)
	}
	fmt.Println()
}

func printSignupTable(signups []model.Signup) {
	if len(signups) == 0 {
		fmt.Println("No signups.")
		return
	}
	for i, s := range signups {
		lottery := ""
		if s.LotteryNumber != nil {
			lottery = fmt.Sprintf(" (lottery %d)", *s.LotteryNumber)
		}
		fmt.Printf("  %2d. %-20s %-10s %-10s %s%s\n", i+1, s.UserID, s.Role, s.Status, s.ID, lottery)
	}
	fmt.Println()
}
