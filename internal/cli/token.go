package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"trivia-live-service/internal/config"
	"trivia-live-service/internal/domain"
	transport "trivia-live-service/internal/transport/http"
)

// NewTokenCmd signs a development token with the configured secret.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		name string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a development access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.Secret == "" {
				return fmt.Errorf("auth.secret not configured")
			}
			auth := transport.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer)
			tok, err := auth.Issue(domain.Identity{ID: args[0], DisplayName: name}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
