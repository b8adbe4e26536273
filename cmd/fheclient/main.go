package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kashguard/go-fhe-client/internal/client"
	"github.com/kashguard/go-fhe-client/internal/config"
	"github.com/kashguard/go-fhe-client/internal/session"
	"github.com/kashguard/go-fhe-client/internal/storage"
	"github.com/kashguard/go-fhe-client/internal/util/command"
)

func main() {
	cfg := config.DefaultClientConfigFromEnv()

	if cfg.PrettyPrintConsole {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	root := &cobra.Command{
		Use:   "fheclient",
		Short: "Client for encrypting, decrypting and inspecting FHE ciphertext handles",
	}

	root.AddCommand(
		newProbeCmd(cfg),
		newSessionCmd(cfg),
		newEncryptCmd(cfg),
		command.NewSubcommandGroup("decrypt",
			newDecryptCmd(cfg),
			newPublicDecryptCmd(cfg),
		),
	)

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

// newClient 从配置组装会话客户端；onPhase 可为 nil
func newClient(cfg config.Client, onPhase func(session.Phase)) (*client.Client, error) {
	var store storage.KVStore
	if cfg.RedisEndpoint != "" {
		redisClient, err := storage.NewRedisClient(cfg.RedisEndpoint)
		if err != nil {
			return nil, err
		}
		store = storage.NewRedisStore(redisClient)
	} else {
		store = storage.NewMemoryStore()
	}

	clientCfg := client.Config{
		RPCEndpoint:        cfg.RPCEndpoint,
		SimulatedNetworks:  cfg.SimulatedNetworks,
		RelayerURL:         cfg.RelayerURL,
		KMSVerifierAddress: cfg.KMSVerifierAddress,
		ACLAddress:         cfg.ACLAddress,
		KeyStore:           store,
		SignatureStore:     store,
		OnPhase:            onPhase,
	}
	if cfg.ChainID != 0 {
		chainID := cfg.ChainID
		clientCfg.ExplicitChainID = &chainID
	}

	return client.New(clientCfg), nil
}
