package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	teamOwner string
	teamName  string
	resetMax  int
)

var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "Manage business teams and their credit pools",
}

var teamsCreateCmd = withInfra(&cobra.Command{
	Use:   "create",
	Short: "Create a team owned by an existing user",
	RunE: func(cmd *cobra.Command, args []string) error {
		team, err := infra.Accounts.CreateTeam(cmd.Context(), teamOwner, teamName)
		if err != nil {
			return fmt.Errorf("create team: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), team)
	},
})

var teamsAddMemberCmd = withInfra(&cobra.Command{
	Use:   "add-member <team-id> <user-id>",
	Short: "Add a user to a team",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		team, err := infra.Accounts.AddMember(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("add member: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), team)
	},
})

var teamsGetCmd = withInfra(&cobra.Command{
	Use:   "get <team-id>",
	Short: "Print a team with its members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		team, err := infra.Accounts.GetTeam(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get team: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), team)
	},
})

var teamsResetCmd = withInfra(&cobra.Command{
	Use:   "reset [team-id]",
	Short: "Reset team credits",
	Long: `Reset one team's credits to its plan allowance, or with no argument
reset every team whose billing cycle is due.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if len(args) == 1 {
			if err := infra.Ledger.ResetTeamCredits(ctx, args[0]); err != nil {
				return fmt.Errorf("reset %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "team %s reset\n", args[0])
			return nil
		}
		n, err := infra.Ledger.ResetDueTeams(ctx, time.Now(), resetMax)
		if err != nil {
			return fmt.Errorf("reset due teams: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reset %d teams\n", n)
		return nil
	},
})

func init() {
	teamsCreateCmd.Flags().StringVar(&teamOwner, "owner", "", "owner user id")
	teamsCreateCmd.Flags().StringVar(&teamName, "name", "", "team name")
	_ = teamsCreateCmd.MarkFlagRequired("owner")
	_ = teamsCreateCmd.MarkFlagRequired("name")

	teamsResetCmd.Flags().IntVar(&resetMax, "limit", 500, "maximum teams to reset when no id is given")

	teamsCmd.AddCommand(teamsCreateCmd, teamsAddMemberCmd, teamsGetCmd, teamsResetCmd)
}
