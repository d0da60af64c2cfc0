package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-settings/internal/auth"
)

// ErrNoJWTSecret is returned when the config carries no api.jwt.secret.
var ErrNoJWTSecret = errors.New("api.jwt.secret is not configured")

var (
	tokenSubject string
	tokenRole    string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the settings API",
	Long: `Sign a bearer token with the node's api.jwt.secret and print it.

Roles:
  viewer    - read settings and history
  operator  - also change values and defaults
  admin     - also restore defaults`,
	Example: `  glsettings token --subject panel-hall --role operator
  glsettings token --subject installer --role admin --ttl 1h`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "who the token is issued to (required)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(auth.RoleViewer), "viewer, operator or admin")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default: api.jwt.token_ttl from config)")
	_ = tokenCmd.MarkFlagRequired("subject") //nolint:errcheck // flag is defined above

	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.API.JWT.Secret == "" {
		return ErrNoJWTSecret
	}

	ttl := tokenTTL
	if ttl <= 0 {
		ttl = cfg.GetTokenTTL()
	}

	token, err := auth.GenerateToken(tokenSubject, auth.Role(tokenRole), cfg.API.JWT.Secret, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
