package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0xPexy/aletta-backend/internal/auth"
	cfgpkg "github.com/0xPexy/aletta-backend/internal/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Mint a bearer token for POST /api/analyze",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := cfgpkg.Load()
		token, err := auth.NewService(cfg.Auth).Issue(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
