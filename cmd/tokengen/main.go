// Command tokengen signs a development access token for a user id with the
// server's JWT secret.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/journalsync/internal/server/auth"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var (
		userID string
		secret string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:          "tokengen",
		Short:        "Sign a bearer access token for the sync server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			if secret == "" {
				return fmt.Errorf("--secret (or JOURNALSYNC_SECRET) is required")
			}
			tok, err := auth.GenerateToken(userID, []byte(secret), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id to embed in the token")
	cmd.Flags().StringVarP(&secret, "secret", "s", os.Getenv("JOURNALSYNC_SECRET"), "JWT signing secret")
	cmd.Flags().DurationVarP(&ttl, "ttl", "t", 24*time.Hour, "token validity")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
