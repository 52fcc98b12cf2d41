package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/supplychain-assistant/internal/adapters/driven/auth"
	"github.com/custodia-labs/supplychain-assistant/internal/core/domain"
)

var (
	tokenOwner string
	tokenEmail string
	tokenTTL   = domain.DefaultTokenTTL
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for an owner",
	Long:  "Signs an HS256 token with JWT_SECRET. The owner id becomes the token subject and scopes every request.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenOwner == "" {
			return errors.New("--owner is required")
		}
		cfg := loadConfig()
		token, err := auth.NewAdapter(cfg.JWTSecret).GenerateToken(&domain.Identity{
			OwnerID: tokenOwner,
			Email:   tokenEmail,
		}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenOwner, "owner", "", "owner id (token subject)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "optional email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", domain.DefaultTokenTTL, "token lifetime")
}
