package cli

import (
	"fmt"

	"mediaforge/internal/usecase"

	"github.com/spf13/cobra"
)

var newUser usecase.RegisterUser

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage user accounts",
}

var usersCreateCmd = withInfra(&cobra.Command{
	Use:   "create",
	Short: "Register a user with a plan allowance",
	Long: `Register a user. The id must match the subject of the tokens the
identity provider issues for them.

Example:
  forgectl users create --id u_123 --email a@example.com --plan pro`,
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := infra.Accounts.Register(cmd.Context(), newUser)
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), u)
	},
})

var usersGetCmd = withInfra(&cobra.Command{
	Use:   "get <user-id>",
	Short: "Print a user and their credit balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := infra.Accounts.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), u)
	},
})

func init() {
	f := usersCreateCmd.Flags()
	f.StringVar(&newUser.ID, "id", "", "user id (token subject)")
	f.StringVar(&newUser.Email, "email", "", "email address")
	f.StringVar(&newUser.DisplayName, "name", "", "display name")
	f.StringVar(&newUser.Plan, "plan", "free", "plan name")
	_ = usersCreateCmd.MarkFlagRequired("id")
	_ = usersCreateCmd.MarkFlagRequired("email")

	usersCmd.AddCommand(usersCreateCmd, usersGetCmd)
}
