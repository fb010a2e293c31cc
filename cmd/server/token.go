package main

import (
	"fmt"
	"time"

	"github.com/linkshelf/server/internal/config"
	"github.com/linkshelf/server/internal/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var userID string
	var ttl time.Duration

	command := &cobra.Command{
		Use:     "token",
		Short:   "issue a bearer token",
		Long:    `issue an HS256 bearer token for a user, signed with auth.jwt_secret`,
		Example: "linkshelf token -u <user-id> --ttl 24h",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not set")
			}

			token, err := middleware.IssueToken([]byte(cfg.Auth.JWTSecret), userID, ttl)
			if err != nil {
				logrus.Error(err)
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	command.Flags().StringVarP(&userID, "user", "u", "", "user id placed in the sub claim")
	command.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	command.MarkFlagRequired("user")
	return command
}
