package config

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Client CLI 与应用侧的客户端配置
type Client struct {
	RPCEndpoint        string
	ChainID            uint64 // 0 表示通过 provider 查询
	RelayerURL         string
	KMSVerifierAddress string
	ACLAddress         string
	RedisEndpoint      string
	PrivateKey         string
	SimulatedNetworks  map[uint64]string
	PrettyPrintConsole bool
}

// DefaultClientConfigFromEnv 从环境变量加载客户端配置。
// 所有键带 FHE_ 前缀，例如 FHE_RPC_ENDPOINT、FHE_RELAYER_URL。
func DefaultClientConfigFromEnv() Client {
	v := viper.New()
	v.SetEnvPrefix("FHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("rpc_endpoint", "http://127.0.0.1:8545")
	v.SetDefault("chain_id", 0)
	v.SetDefault("relayer_url", "")
	v.SetDefault("kms_verifier_address", "")
	v.SetDefault("acl_address", "")
	v.SetDefault("redis_endpoint", "")
	v.SetDefault("private_key", "")
	v.SetDefault("simulated_networks", "")
	v.SetDefault("pretty_print_console", true)

	return Client{
		RPCEndpoint:        v.GetString("rpc_endpoint"),
		ChainID:            v.GetUint64("chain_id"),
		RelayerURL:         v.GetString("relayer_url"),
		KMSVerifierAddress: v.GetString("kms_verifier_address"),
		ACLAddress:         v.GetString("acl_address"),
		RedisEndpoint:      v.GetString("redis_endpoint"),
		PrivateKey:         v.GetString("private_key"),
		SimulatedNetworks:  parseSimulatedNetworks(v.GetString("simulated_networks")),
		PrettyPrintConsole: v.GetBool("pretty_print_console"),
	}
}

// parseSimulatedNetworks 解析 "31337=http://127.0.0.1:8545,1337=..." 形式的网络表
func parseSimulatedNetworks(raw string) map[uint64]string {
	if raw == "" {
		return nil
	}

	out := make(map[uint64]string)
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), "=", 2)
		if len(parts) != 2 {
			log.Warn().Str("entry", entry).Msg("Ignoring malformed simulated network entry")
			continue
		}
		chainID, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			log.Warn().Str("entry", entry).Msg("Ignoring simulated network entry with bad chain id")
			continue
		}
		out[chainID] = parts[1]
	}

	return out
}
