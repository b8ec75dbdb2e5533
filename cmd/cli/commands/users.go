package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// GetUserCmd creates the getUser command
func GetUserCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "getUser <user_id>",
		Short: "Look a user up in the roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
				if err := app.Identity.Refresh(app.Ctx); err != nil {
					return err
				}
			}

			user, err := app.Identity.GetUser(app.Ctx, args[0])
			if err != nil {
				return err
			}

			subRoles := make([]string, 0, len(user.SubRoles))
			for _, sr := range user.SubRoles {
				subRoles = append(subRoles, string(sr))
			}

			fmt.Printf("\n%s %s (%s)\n", user.FirstName, user.LastName, user.ID)
			fmt.Printf("Username:  %s\n", user.Username)
			fmt.Printf("Email:     %s\n", user.Email)
			fmt.Printf("Phone:     %s\n", user.Phone)
			fmt.Printf("Role:      %s\n", user.Role)
			fmt.Printf("Sub-roles: %s\n\n", strings.Join(subRoles, ", "))
			return nil
		},
	}

	cmd.Flags().Bool("refresh", false, "Reload the roster before looking up")

	return cmd
}
