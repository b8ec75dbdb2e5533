package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/streetmed/rounds/pkg/core/model"
	"github.com/streetmed/rounds/pkg/core/services"
)

// CreateRoundCmd creates the createRound command
func CreateRoundCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "createRound <title> <start> <end> <location> <max_participants>",
		Short: "Create a scheduled round (times as \"2006-01-02 15:04\")",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseDateTime(args[1])
			if err != nil {
				return err
			}
			end, err := parseDateTime(args[2])
			if err != nil {
				return err
			}
			max, err := strconv.Atoi(args[4])
			if err != nil {
				return fmt.Errorf("max_participants must be a number: %w", err)
			}
			description, _ := cmd.Flags().GetString("description")

			round, err := app.Registry.Create(app.Ctx, services.RoundSpec{
				Title:           args[0],
				Description:     description,
				StartTime:       start,
				EndTime:         end,
				Location:        args[3],
				MaxParticipants: max,
			})
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Round created successfully!\n\n")
			printRound(round)
			return nil
		},
	}

	cmd.Flags().String("description", "", "Round description")

	return cmd
}

// CreateSeriesCmd creates the createSeries command
func CreateSeriesCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "createSeries <series_name> <from> <until>",
		Short: "Create one round per occurrence of a configured series (dates as 2006-01-02)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			series, err := app.Cfg.Series(args[0])
			if err != nil {
				return err
			}
			from, err := parseDate(args[1])
			if err != nil {
				return err
			}
			until, err := parseDate(args[2])
			if err != nil {
				return err
			}
			// include the whole of the final day
			until = until.Add(24*time.Hour - time.Second)

			app.Logger.Debug("createSeries command",
				zap.String("series", series.Name),
				zap.Time("from", from),
				zap.Time("until", until))

			rounds, err := app.Registry.CreateSeries(app.Ctx, *series, from, until)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Created %d rounds for series %s!\n\n", len(rounds), series.Name)
			printRoundTable(rounds)
			return nil
		},
	}
}

// UpdateRoundCmd creates the updateRound command
func UpdateRoundCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "updateRound <round_id>",
		Short: "Update fields of a round; only the flags given are changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := roundPatchFromFlags(cmd)
			if err != nil {
				return err
			}

			round, err := app.Registry.Update(app.Ctx, args[0], patch)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Round updated successfully!\n\n")
			printRound(round)
			return nil
		},
	}

	cmd.Flags().String("title", "", "New title")
	cmd.Flags().String("description", "", "New description")
	cmd.Flags().String("start", "", "New start time")
	cmd.Flags().String("end", "", "New end time")
	cmd.Flags().String("location", "", "New location")
	cmd.Flags().Int("max", 0, "New maximum number of volunteers")
	cmd.Flags().String("team-lead", "", "Team lead user id (empty string clears)")
	cmd.Flags().String("clinician", "", "Clinician user id (empty string clears)")
	cmd.Flags().String("status", "", "New status (SCHEDULED, CANCELED, COMPLETED)")

	return cmd
}

func roundPatchFromFlags(cmd *cobra.Command) (services.RoundPatch, error) {
	var patch services.RoundPatch
	flags := cmd.Flags()

	str := func(name string) *string {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetString(name)
		return &v
	}
	when := func(name string) (*time.Time, error) {
		v := str(name)
		if v == nil {
			return nil, nil
		}
		t, err := parseDateTime(*v)
		if err != nil {
			return nil, err
		}
		return &t, nil
	}

	var err error
	patch.Title = str("title")
	patch.Description = str("description")
	patch.Location = str("location")
	patch.TeamLeadID = str("team-lead")
	patch.ClinicianID = str("clinician")
	if patch.StartTime, err = when("start"); err != nil {
		return patch, err
	}
	if patch.EndTime, err = when("end"); err != nil {
		return patch, err
	}
	if flags.Changed("max") {
		max, _ := flags.GetInt("max")
		patch.MaxParticipants = &max
	}
	if s := str("status"); s != nil {
		status := model.RoundStatus(*s)
		patch.Status = &status
	}
	return patch, nil
}

// CancelRoundCmd creates the cancelRound command
func CancelRoundCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancelRound <round_id>",
		Short: "Cancel a round and release all of its signups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := services.CancelRoundWithSignups(app.Ctx, app.Registry, app.Engine, app.Logger, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Round canceled, %d signups released!\n\n", result.Released)
			printRound(result.Round)
			return nil
		},
	}
}

// CompleteRoundCmd creates the completeRound command
func CompleteRoundCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "completeRound <round_id>",
		Short: "Mark a round as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			round, err := app.Registry.Complete(app.Ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Round completed!\n\n")
			printRound(round)
			return nil
		},
	}
}

// GetRoundCmd creates the getRound command
func GetRoundCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "getRound <round_id>",
		Short: "Show a round with its participant counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			round, err := app.Registry.Get(app.Ctx, args[0])
			if err != nil {
				return err
			}
			counts, err := app.Engine.ParticipantCounts(app.Ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Println()
			printRound(round)
			color := capacityColor(counts.Confirmed, counts.MaxParticipants, colorGreen, colorYellow, colorRed)
			fmt.Printf("Confirmed:   %s%d/%d%s\n", color, counts.Confirmed, counts.MaxParticipants, colorReset)
			fmt.Printf("Waitlisted:  %d\n\n", counts.Waitlisted)
			return nil
		},
	}
}

// ListRoundsCmd creates the listRounds command
func ListRoundsCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listRounds",
		Short: "List upcoming rounds, or filter by status, range, missing role or role holder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			needing, _ := cmd.Flags().GetString("needing")
			lead, _ := cmd.Flags().GetString("team-lead")
			clinician, _ := cmd.Flags().GetString("clinician")

			var (
				rounds []model.Round
				err    error
			)
			switch {
			case from != "" || to != "":
				if from == "" || to == "" {
					return fmt.Errorf("--from and --to must be given together")
				}
				start, perr := parseDateTime(from)
				if perr != nil {
					return perr
				}
				end, perr := parseDateTime(to)
				if perr != nil {
					return perr
				}
				rounds, err = app.Registry.ListInRange(app.Ctx, start, end)
			case status != "":
				rounds, err = app.Registry.ListByStatus(app.Ctx, model.RoundStatus(status))
			case needing != "":
				role, perr := parseRole(needing)
				if perr != nil {
					return perr
				}
				switch role {
				case model.RoleTeamLead:
					rounds, err = app.Registry.ListNeedingTeamLead(app.Ctx)
				case model.RoleClinician:
					rounds, err = app.Registry.ListNeedingClinician(app.Ctx)
				default:
					return fmt.Errorf("--needing takes team-lead or clinician")
				}
			case lead != "":
				rounds, err = app.Registry.ListForTeamLead(app.Ctx, lead)
			case clinician != "":
				rounds, err = app.Registry.ListForClinician(app.Ctx, clinician)
			default:
				rounds, err = app.Registry.ListUpcoming(app.Ctx)
			}
			if err != nil {
				return err
			}

			fmt.Printf("\nFound %d rounds:\n\n", len(rounds))
			printRoundTable(rounds)
			return nil
		},
	}

	cmd.Flags().String("status", "", "Only rounds with this status")
	cmd.Flags().String("from", "", "Start of range (with --to)")
	cmd.Flags().String("to", "", "End of range (with --from)")
	cmd.Flags().String("needing", "", "Upcoming rounds without a team-lead or clinician")
	cmd.Flags().String("team-lead", "", "Rounds led by this user")
	cmd.Flags().String("clinician", "", "Rounds with this user as clinician")

	return cmd
}

// CountRoundsCmd creates the countRounds command
func CountRoundsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "countRounds",
		Short: "Count upcoming scheduled rounds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := app.Registry.CountUpcoming(app.Ctx)
			if err != nil {
				return err
			}
			fmt.Printf("\n%d upcoming rounds\n\n", n)
			return nil
		},
	}
}
