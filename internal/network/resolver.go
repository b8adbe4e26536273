package network

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-fhe-client/internal/provider"
)

// DefaultSimulatedChainID 本地开发网络的约定链 ID（hardhat 默认值）
const DefaultSimulatedChainID uint64 = 31337

// DefaultSimulatedEndpoint 本地开发网络的约定 RPC 地址
const DefaultSimulatedEndpoint = "http://127.0.0.1:8545"

// relayerMetadataMethod 本地模拟节点暴露的诊断 RPC 方法
const relayerMetadataMethod = "fhevm_relayer_metadata"

// SimulatorMetadata 模拟节点返回的部署元数据。
// 三个合约地址字段缺一不可，否则该节点不被视为兼容的模拟器。
type SimulatorMetadata struct {
	ACLAddress           string `json:"aclAddress"`
	KMSVerifierAddress   string `json:"kmsVerifierAddress"`
	InputVerifierAddress string `json:"inputVerifierAddress"`
}

// Resolution 网络解析结果
type Resolution struct {
	IsSimulated bool
	ChainID     uint64
	RPCEndpoint string
	Simulator   *SimulatorMetadata
}

// ProbeError 模拟器探测错误。
// Unreachable 区分「节点无法访问」与「节点可访问但不是兼容的模拟器」，
// 仅用于诊断：两种情况都回退到 live 模式，不会向上抛出。
type ProbeError struct {
	Unreachable bool
	Err         error
}

func (e *ProbeError) Error() string {
	if e.Unreachable {
		return fmt.Sprintf("simulator endpoint unreachable: %v", e.Err)
	}
	return fmt.Sprintf("endpoint is not a compatible simulator: %v", e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// MergeSimulatedNetworks 将调用方提供的模拟网络表叠加在内置默认项之上
func MergeSimulatedNetworks(custom map[uint64]string) map[uint64]string {
	merged := map[uint64]string{
		DefaultSimulatedChainID: DefaultSimulatedEndpoint,
	}
	for chainID, endpoint := range custom {
		merged[chainID] = endpoint
	}
	return merged
}

// Resolve 确定目标网络的链 ID 以及它是模拟网络还是线上网络。
//
// explicitChainID 优先于查询 provider：钱包切换网络的速度可能快于
// provider 对象的更新，显式传入的链 ID 被视为权威。
// 模拟网络的判定分两步：链 ID 出现在模拟网络表中，且对应端点通过
// 诊断探测。探测失败不是错误，而是回退到 live 路径。
func Resolve(ctx context.Context, prov provider.Provider, explicitChainID *uint64, simulated map[uint64]string) (*Resolution, error) {
	if prov == nil {
		return nil, errors.New("provider is required")
	}

	// 1. 确定链 ID
	var chainID uint64
	if explicitChainID != nil {
		chainID = *explicitChainID
	} else {
		queried, err := provider.ChainID(ctx, prov)
		if err != nil {
			return nil, errors.Wrap(err, "failed to query chain id from provider")
		}
		chainID = queried
	}

	merged := MergeSimulatedNetworks(simulated)
	endpoint, isCandidate := merged[chainID]
	if !isCandidate {
		return &Resolution{IsSimulated: false, ChainID: chainID}, nil
	}

	// 2. 候选模拟网络：探测端点确认它确实是兼容的本地节点
	probeProv := prov
	if endpoint != "" {
		probeProv = provider.NewRPCClient(endpoint)
	}

	meta, probeErr := probeSimulator(ctx, probeProv)
	if probeErr != nil {
		// 显式回退策略：探测失败走 live 路径，而不是报错
		log.Debug().
			Uint64("chain_id", chainID).
			Bool("unreachable", probeErr.Unreachable).
			Err(probeErr).
			Msg("Simulator probe failed, falling back to live mode")
		return &Resolution{IsSimulated: false, ChainID: chainID}, nil
	}

	return &Resolution{
		IsSimulated: true,
		ChainID:     chainID,
		RPCEndpoint: endpoint,
		Simulator:   meta,
	}, nil
}

// probeSimulator 调用诊断 RPC 方法并校验必需字段
func probeSimulator(ctx context.Context, prov provider.Provider) (*SimulatorMetadata, *ProbeError) {
	result, err := prov.Request(ctx, relayerMetadataMethod, nil)
	if err != nil {
		// RPC 层错误无法可靠区分「连不上」与「方法不存在」，
		// 按约定：HTTP 传输失败会包含执行错误，方法不存在返回 RPC error。
		return nil, &ProbeError{Unreachable: isTransportError(err), Err: err}
	}

	var meta SimulatorMetadata
	if err := json.Unmarshal(result, &meta); err != nil {
		return nil, &ProbeError{Err: errors.Wrap(err, "failed to decode relayer metadata")}
	}

	for field, addr := range map[string]string{
		"aclAddress":           meta.ACLAddress,
		"kmsVerifierAddress":   meta.KMSVerifierAddress,
		"inputVerifierAddress": meta.InputVerifierAddress,
	} {
		if addr == "" {
			return nil, &ProbeError{Err: errors.Errorf("relayer metadata is missing %s", field)}
		}
		if !common.IsHexAddress(addr) {
			return nil, &ProbeError{Err: errors.Errorf("relayer metadata field %s is not an address: %q", field, addr)}
		}
	}

	return &meta, nil
}

// isTransportError 粗略判断错误是否发生在传输层
func isTransportError(err error) bool {
	msg := err.Error()
	for _, marker := range []string{"failed to execute HTTP request", "failed to decode RPC response", "context deadline exceeded"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
