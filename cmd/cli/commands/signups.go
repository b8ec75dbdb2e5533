package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/streetmed/rounds/pkg/core/model"
)

func actor(cmd *cobra.Command) (string, error) {
	id, _ := cmd.Flags().GetString("as")
	if id == "" {
		return "", fmt.Errorf("--as <user_id> is required")
	}
	return id, nil
}

func addActorFlag(cmd *cobra.Command, usage string) {
	cmd.Flags().String("as", "", usage)
}

// SignupCmd creates the signup command
func SignupCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup <round_id> <user_id>",
		Short: "Sign a volunteer up for a round",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			roleFlag, _ := cmd.Flags().GetString("role")
			role, err := parseRole(roleFlag)
			if err != nil {
				return err
			}

			signup, err := app.Engine.Signup(app.Ctx, args[0], args[1], role)
			if err != nil {
				return err
			}

			if signup.Status == model.SignupWaitlisted {
				fmt.Printf("\n✓ Round is full, %s was added to the waitlist.\n\n", args[1])
			} else {
				fmt.Printf("\n✓ Signup confirmed!\n\n")
			}
			printSignup(signup)
			return nil
		},
	}

	cmd.Flags().String("role", "volunteer", "volunteer, team-lead or clinician")

	return cmd
}

// CancelSignupCmd creates the cancelSignup command
func CancelSignupCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancelSignup <signup_id>",
		Short: "Cancel your own signup (not allowed close to the round)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := actor(cmd)
			if err != nil {
				return err
			}

			result, err := app.Engine.Cancel(app.Ctx, args[0], userID)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Signup %s canceled.\n", args[0])
			if result.LotteryRan {
				fmt.Printf("Lottery promoted %d from the waitlist:\n", len(result.Promoted))
				printSignupTable(result.Promoted)
			} else {
				fmt.Println()
			}
			return nil
		},
	}

	addActorFlag(cmd, "User id that owns the signup")

	return cmd
}

// ConfirmSignupCmd creates the confirmSignup command
func ConfirmSignupCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirmSignup <signup_id>",
		Short: "Administrator override: confirm a signup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adminID, err := actor(cmd)
			if err != nil {
				return err
			}

			signup, err := app.Engine.AdminConfirm(app.Ctx, adminID, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Signup confirmed by %s.\n\n", adminID)
			printSignup(signup)
			return nil
		},
	}

	addActorFlag(cmd, "Administrator user id")

	return cmd
}

// RejectSignupCmd creates the rejectSignup command
func RejectSignupCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rejectSignup <signup_id>",
		Short: "Administrator override: reject a signup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adminID, err := actor(cmd)
			if err != nil {
				return err
			}

			signup, err := app.Engine.AdminReject(app.Ctx, adminID, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Signup rejected by %s.\n\n", adminID)
			printSignup(signup)
			return nil
		},
	}

	addActorFlag(cmd, "Administrator user id")

	return cmd
}

// AssignRoleCmd creates the assignRole command
func AssignRoleCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assignRole <round_id> <team-lead|clinician> <user_id>",
		Short: "Assign a round's team lead or clinician",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			adminID, err := actor(cmd)
			if err != nil {
				return err
			}
			role, err := parseRole(args[1])
			if err != nil {
				return err
			}

			round, err := app.Engine.AssignExclusiveRole(app.Ctx, adminID, args[0], args[2], role)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ %s assigned as %s.\n\n", args[2], role)
			printRound(round)
			return nil
		},
	}

	addActorFlag(cmd, "Administrator user id")

	return cmd
}

// RunLotteryCmd creates the runLottery command
func RunLotteryCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "runLottery <round_id>",
		Short: "Promote waitlisted volunteers into any free places",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			promoted, err := app.Engine.RunLottery(app.Ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Lottery run, %d promoted.\n\n", len(promoted))
			printSignupTable(promoted)
			return nil
		},
	}
}

// ListSignupsCmd creates the listSignups command
func ListSignupsCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listSignups <round_id>",
		Short: "List a round's signups with contact details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			confirmedOnly, _ := cmd.Flags().GetBool("confirmed")
			waitlistOnly, _ := cmd.Flags().GetBool("waitlist")

			switch {
			case confirmedOnly:
				signups, err := app.Engine.ListConfirmed(app.Ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("\nConfirmed (%d), in signup order:\n\n", len(signups))
				printSignupTable(signups)
				return nil
			case waitlistOnly:
				signups, err := app.Engine.ListWaitlist(app.Ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("\nWaitlist (%d), in promotion order:\n\n", len(signups))
				printSignupTable(signups)
				return nil
			}

			details, err := app.Engine.ListSignupsForRound(app.Ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("\nFound %d signups:\n\n", len(details))
			for _, d := range details {
				name := d.FirstName + " " + d.LastName
				if d.Email == "" {
					name = colorDim + "unknown user" + colorReset
				}
				fmt.Printf("- %s (%s) - %s - %s - %s %s\n", name, d.UserID, d.Role, d.Status, d.Email, d.Phone)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().Bool("confirmed", false, "Only confirmed signups")
	cmd.Flags().Bool("waitlist", false, "Only the waitlist")

	return cmd
}

// UserSignupsCmd creates the userSignups command
func UserSignupsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "userSignups <user_id>",
		Short: "List a user's signups split into upcoming and past rounds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.Engine.ListUserSignups(app.Ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("\nUpcoming (%d):\n", len(result.Upcoming))
			for _, rs := range result.Upcoming {
				fmt.Printf("  %s  %-30s %-10s %s\n", rs.Round.StartTime.Local().Format(dateTimeLayout), rs.Round.Title, rs.Signup.Role, rs.Signup.Status)
			}
			fmt.Printf("\nPast (%d):\n", len(result.Past))
			for _, rs := range result.Past {
				fmt.Printf("  %s%s  %-30s %-10s %s%s\n", colorDim, rs.Round.StartTime.Local().Format(dateTimeLayout), rs.Round.Title, rs.Signup.Role, rs.Signup.Status, colorReset)
			}
			fmt.Println()
			return nil
		},
	}
}

// IsSignedUpCmd creates the isSignedUp command
func IsSignedUpCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "isSignedUp <round_id> <user_id>",
		Short: "Check whether a user has any signup on a round",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := app.Engine.IsSignedUp(app.Ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if ok {
				fmt.Printf("\n✓ %s is signed up for round %s\n\n", args[1], args[0])
			} else {
				fmt.Printf("\n✗ %s is not signed up for round %s\n\n", args[1], args[0])
			}
			return nil
		},
	}
}

// ReleaseSignupsCmd creates the releaseSignups command
func ReleaseSignupsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "releaseSignups <round_id>",
		Short: "Release the signups of an already canceled round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			released, err := app.Engine.CascadeRoundCancellation(app.Ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("\n✓ %d signups released.\n\n", released)
			return nil
		},
	}
}

// SendRemindersCmd creates the sendReminders command
func SendRemindersCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sendReminders",
		Short: "Remind confirmed volunteers of tomorrow's rounds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Logger.Debug("sendReminders command")

			n, err := app.Engine.SendRoundReminders(app.Ctx)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ %d reminders queued.\n\n", n)
			app.Logger.Info("Reminders queued", zap.Int("count", n))
			return nil
		},
	}
}
