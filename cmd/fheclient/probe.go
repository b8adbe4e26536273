package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kashguard/go-fhe-client/internal/config"
	"github.com/kashguard/go-fhe-client/internal/network"
	"github.com/kashguard/go-fhe-client/internal/provider"
)

// newProbeCmd 探测目标网络并打印解析结果
func newProbeCmd(cfg config.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Resolve the target network and report whether it is simulated or live",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			var explicitChainID *uint64
			if cfg.ChainID != 0 {
				chainID := cfg.ChainID
				explicitChainID = &chainID
			}

			prov := provider.NewRPCClient(cfg.RPCEndpoint)
			res, err := network.Resolve(ctx, prov, explicitChainID, cfg.SimulatedNetworks)
			if err != nil {
				return err
			}

			event := log.Info().
				Uint64("chain_id", res.ChainID).
				Bool("simulated", res.IsSimulated)
			if res.Simulator != nil {
				event = event.
					Str("acl_address", res.Simulator.ACLAddress).
					Str("kms_verifier_address", res.Simulator.KMSVerifierAddress).
					Str("input_verifier_address", res.Simulator.InputVerifierAddress)
			}
			event.Msg("Network resolved")

			return nil
		},
	}
}
