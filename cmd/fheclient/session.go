package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kashguard/go-fhe-client/internal/client"
	"github.com/kashguard/go-fhe-client/internal/config"
	"github.com/kashguard/go-fhe-client/internal/session"
	"github.com/kashguard/go-fhe-client/internal/util/command"
)

// newSessionCmd 会话生命周期命令组
func newSessionCmd(cfg config.Client) *cobra.Command {
	return command.NewSubcommandGroup("session", newSessionInitCmd(cfg))
}

// newSessionInitCmd 初始化会话并逐阶段打印进度
func newSessionInitCmd(cfg config.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a session against the configured network and report each phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			c, err := newClient(cfg, func(p session.Phase) {
				log.Info().Str("phase", string(p)).Msg("Initialization phase")
			})
			if err != nil {
				return err
			}
			defer c.Dispose()

			c.OnStatusChange(func(s client.Status) {
				log.Info().Str("status", string(s)).Msg("Client status changed")
			})

			if err := c.Init(ctx); err != nil {
				return err
			}

			sess, err := c.Session()
			if err != nil {
				return err
			}

			log.Info().
				Uint64("chain_id", sess.ChainID()).
				Bool("simulated", sess.IsSimulated()).
				Str("acl_address", sess.ACLAddress().Hex()).
				Str("kms_verifier_address", sess.KMSVerifierAddress().Hex()).
				Msg("Session ready")

			return nil
		},
	}
}
