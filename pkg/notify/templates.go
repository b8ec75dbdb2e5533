package notify

import (
	"fmt"
	"strings"

	"github.com/streetmed/rounds/pkg/core/model"
)

const timeLayout = "Monday 2 January 2006 at 15:04"

// Render builds the email subject and body for a notification kind
func Render(kind model.NotificationKind, data model.NotificationData) (subject, body string, err error) {
	when := data.StartTime.Format(timeLayout)

	switch kind {
	case model.NotifySignupConfirmation:
		if data.Status == model.SignupWaitlisted {
			subject = fmt.Sprintf("You're on the waitlist for %s", data.RoundTitle)
			body = fmt.Sprintf("Hi\n\nThe round %q on %s at %s is currently full, so you have been added to the waitlist.\nWe'll email you if a place opens up.\n\nThanks\nThe StreetMed rounds team\n",
				data.RoundTitle, when, data.Location)
			return subject, body, nil
		}
		subject = fmt.Sprintf("Signup confirmed: %s", data.RoundTitle)
		body = fmt.Sprintf("Hi\n\nYou're confirmed%s for the round %q on %s at %s.\n\nThanks\nThe StreetMed rounds team\n",
			roleSuffix(data.Role), data.RoundTitle, when, data.Location)
		return subject, body, nil

	case model.NotifyLotterySelected:
		subject = fmt.Sprintf("A place opened up: %s", data.RoundTitle)
		body = fmt.Sprintf("Hi\n\nGood news, you've been selected from the waitlist for the round %q on %s at %s.\nYour signup is now confirmed.\n\nThanks\nThe StreetMed rounds team\n",
			data.RoundTitle, when, data.Location)
		return subject, body, nil

	case model.NotifyRoundCanceled:
		subject = fmt.Sprintf("Round canceled: %s", data.RoundTitle)
		body = fmt.Sprintf("Hi\n\nThe round %q on %s at %s has been canceled. Your signup has been released.\n\nSorry for the change of plan\nThe StreetMed rounds team\n",
			data.RoundTitle, when, data.Location)
		return subject, body, nil

	case model.NotifyRoundReminder:
		subject = fmt.Sprintf("Reminder: %s tomorrow", data.RoundTitle)
		body = fmt.Sprintf("Hi\n\nThis is a reminder that you're signed up%s for the round %q on %s at %s.\nIf you can no longer make it please let the team know.\n\nThanks\nThe StreetMed rounds team\n",
			roleSuffix(data.Role), data.RoundTitle, when, data.Location)
		return subject, body, nil
	}

	return "", "", fmt.Errorf("unknown notification kind: %s", kind)
}

func roleSuffix(role model.SignupRole) string {
	if role == "" || role == model.RoleVolunteer {
		return ""
	}
	return " as " + strings.ToLower(strings.ReplaceAll(string(role), "_", " "))
}
