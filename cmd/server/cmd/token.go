package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/nfrund/relay/internal/auth"
	"github.com/nfrund/relay/internal/config"
	"github.com/spf13/cobra"
)

var (
	tokenUser string
	tokenTTL  time.Duration
)

// tokenCmd issues a development token signed with AUTH_JWT_SECRET.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed websocket token for a user id",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := config.New().GetJWTSecret()
		if secret == "" {
			return errors.New("AUTH_JWT_SECRET is not set")
		}
		token, err := auth.NewJWTVerifier(secret).Issue(tokenUser, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id to put in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}
