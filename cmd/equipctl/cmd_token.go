package main

import (
	"errors"
	"fmt"
	"time"

	authmw "github.com/JonMunkholm/equipment-analytics/internal/web/middleware"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		userID int64
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token for a user",
		Long: `Print an HS256 bearer token for --user signed with AUTH_JWT_SECRET.

The token expires after --ttl, or AUTH_TOKEN_TTL when unset.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return errors.New("--user must be a positive user id")
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("AUTH_JWT_SECRET is not set")
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}

			tok, err := authmw.IssueToken([]byte(cfg.Auth.JWTSecret), userID, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "User id to put in the token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime")
	return cmd
}
