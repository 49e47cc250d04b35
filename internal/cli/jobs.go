package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	jobKind    string
	relayGrace time.Duration
	relayBatch int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and repair job records",
}

var jobsGetCmd = withInfra(&cobra.Command{
	Use:   "get <id>",
	Short: "Print an illustration or brand record",
	Long: `Print an illustration or brand record as JSON.

Examples:
  forgectl jobs get 6f1c...            # illustration
  forgectl jobs get brand_01J... -k training`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		switch strings.ToLower(jobKind) {
		case "generation", "illustration":
			il, err := infra.Illustrations.FindByID(ctx, nil, args[0])
			if err != nil {
				return fmt.Errorf("get illustration: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), il)
		case "training", "brand":
			b, err := infra.Brands.FindByID(ctx, nil, args[0])
			if err != nil {
				return fmt.Errorf("get brand: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), b)
		default:
			return fmt.Errorf("unknown kind %q (want generation or training)", jobKind)
		}
	},
})

var jobsReapCmd = withInfra(&cobra.Command{
	Use:   "reap",
	Short: "Fail jobs stuck in processing or training now",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := infra.Reaper.ReapStale(cmd.Context())
		if err != nil {
			return fmt.Errorf("reap: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "failed %d illustrations and %d brands, republished %d queued jobs\n", res.Illustrations, res.Brands, res.Requeued)
		return nil
	},
})

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Job message outbox commands",
}

var outboxRelayCmd = withInfra(&cobra.Command{
	Use:   "relay",
	Short: "Publish undispatched job messages now",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := infra.Relay.RelayPending(cmd.Context(), relayGrace, relayBatch)
		if err != nil {
			return fmt.Errorf("relay: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "relayed %d messages\n", n)
		return nil
	},
})

func init() {
	jobsGetCmd.Flags().StringVarP(&jobKind, "kind", "k", "generation", "job kind: generation or training")
	jobsCmd.AddCommand(jobsGetCmd, jobsReapCmd)

	outboxRelayCmd.Flags().DurationVar(&relayGrace, "grace", 0, "only relay messages older than this")
	outboxRelayCmd.Flags().IntVar(&relayBatch, "batch", 100, "maximum messages to relay")
	outboxCmd.AddCommand(outboxRelayCmd)
}
