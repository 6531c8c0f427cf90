package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/ritualog/internal/middleware"
	"github.com/spf13/cobra"
)

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions, defaultSecret string) *cobra.Command {
	var userID, secret string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user (development only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			token, err := middleware.GenerateToken(secret, userID, ttl)
			if err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"user_id": userID, "token": token})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id placed in the sub claim")
	cmd.Flags().StringVar(&secret, "secret", defaultSecret, "HMAC secret (defaults to JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for no expiry")

	return cmd
}
