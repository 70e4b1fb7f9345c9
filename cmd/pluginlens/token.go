// file: cmd/pluginlens/token.go

package main

import (
	"PluginLens/internal/service/admin_token"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func buildTokenCmd(opts *rootOptions) *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "用 server.admin_key 签发一个管理令牌",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Server.AdminKey == "" {
				return errors.New("未配置 server.admin_key")
			}
			issuer, err := admin_token.NewIssuer(cfg.Server.AdminKey)
			if err != nil {
				return err
			}
			token, err := issuer.Issue(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cli", "令牌的 sub 字段")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "有效期")
	return cmd
}
