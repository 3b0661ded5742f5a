package main

import (
	"fmt"
	"time"

	"github.com/jekabolt/grbpwr-tickets/config"
	"github.com/jekabolt/grbpwr-tickets/internal/auth/jwt"
	"github.com/spf13/cobra"
)

var (
	tokenUser  string
	tokenAdmin bool
	tokenTTL   time.Duration

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with the configured secret",
		RunE:  issueToken,
	}
)

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id to put in the subject claim")
	tokenCmd.Flags().BoolVar(&tokenAdmin, "admin", false, "grant the admin role")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (defaults to auth.jwt_ttl)")
	_ = tokenCmd.MarkFlagRequired("user")
}

func issueToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("cannot load a config %v", err.Error())
	}
	ja, err := jwt.New(&cfg.Auth)
	if err != nil {
		return err
	}

	ttl := tokenTTL
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTL
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	token, err := jwt.NewToken(ja, ttl, tokenUser, tokenAdmin)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
