package cli

import (
	"errors"
	"fmt"
	"time"

	"mediaforge/internal/infra/auth"

	"github.com/spf13/cobra"
)

var (
	tokenEmail string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Bearer token helpers",
}

var tokenMintCmd = &cobra.Command{
	Use:   "mint <user-id>",
	Short: "Mint an HS256 token for local testing",
	Long: `Mint a bearer token signed with auth.hmac_secret. Only available when
auth.mode is hmac.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Auth.Mode != "hmac" {
			return errors.New("token mint requires auth.mode=hmac")
		}
		v := auth.NewHMACVerifier(cfg.Auth.HMACSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
		tok, err := v.Mint(args[0], tokenEmail, tokenTTL)
		if err != nil {
			return fmt.Errorf("mint: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenMintCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenMintCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	tokenCmd.AddCommand(tokenMintCmd)
}
