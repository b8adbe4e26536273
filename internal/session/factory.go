package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-fhe-client/internal/engine"
	"github.com/kashguard/go-fhe-client/internal/network"
	"github.com/kashguard/go-fhe-client/internal/provider"
	"github.com/kashguard/go-fhe-client/internal/storage"
	"github.com/kashguard/go-fhe-client/internal/types"
)

// Phase 会话构建阶段，通过 OnPhase 上报给观察者。
// 仅用于可观测性，不参与控制流。
type Phase string

const (
	PhaseResolving               Phase = "resolving"
	PhaseSimulatedSession        Phase = "constructing-simulated-session"
	PhaseLoadingBackend          Phase = "loading-backend"
	PhaseLoadingBackendDone      Phase = "loading-backend-done"
	PhaseInitializingBackend     Phase = "initializing-backend"
	PhaseInitializingBackendDone Phase = "initializing-backend-done"
	PhaseCreating                Phase = "creating"
	PhaseReady                   Phase = "ready"
)

// FactoryConfig 会话工厂配置
type FactoryConfig struct {
	// Provider 与 RPCEndpoint 二选一；Provider 优先
	Provider    provider.Provider
	RPCEndpoint string

	// ExplicitChainID 显式链 ID，优先于查询 provider
	ExplicitChainID *uint64

	// SimulatedNetworks 调用方补充的模拟网络表（链 ID → RPC 地址）
	SimulatedNetworks map[uint64]string

	// RelayerURL 线上网络的 relayer 网关地址
	RelayerURL string

	// KMSVerifierAddress 线上网络的密钥管理校验合约地址
	KMSVerifierAddress string

	// ACLAddress 线上网络的访问控制合约地址
	ACLAddress string

	// KeyStore 公钥材料缓存；nil 时不做缓存
	KeyStore storage.KVStore

	// OnPhase 阶段回调，可为 nil
	OnPhase func(Phase)
}

// checkpoint 协作式取消检查点。
// 每个异步步骤之后立即调用；漏掉一个检查点会悄悄拉长
// abort 到实际停止之间的延迟。
func checkpoint(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return errors.WithStack(types.ErrAborted)
	default:
		return nil
	}
}

// Create 构建会话对象，在每个异步边界都可取消。
// 模拟网络走进程内路径；线上网络加载并初始化后端、
// 解析公钥材料（带缓存）后构建 relayer 会话。
func Create(ctx context.Context, cfg *FactoryConfig) (*Session, error) {
	if cfg == nil {
		return nil, types.NewConfigError("factory config is nil")
	}

	emit := cfg.OnPhase
	if emit == nil {
		emit = func(Phase) {}
	}

	prov := cfg.Provider
	if prov == nil {
		if cfg.RPCEndpoint == "" {
			return nil, types.NewConfigError("either a provider or an RPC endpoint is required")
		}
		prov = provider.NewRPCClient(cfg.RPCEndpoint)
	}

	// 1. 网络解析。检查点在检查步骤错误之前执行：
	// 取消的操作以取消错误上抛，而不是它引发的次生失败。
	emit(PhaseResolving)
	res, err := network.Resolve(ctx, prov, cfg.ExplicitChainID, cfg.SimulatedNetworks)
	if cerr := checkpoint(ctx); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, errors.Wrap(err, "network resolution failed")
	}

	if res.IsSimulated {
		return createSimulated(ctx, res, emit)
	}
	return createLive(ctx, cfg, res, emit)
}

// createSimulated 构建进程内模拟会话，无需远程密钥管理往返
func createSimulated(ctx context.Context, res *network.Resolution, emit func(Phase)) (*Session, error) {
	emit(PhaseSimulatedSession)

	eng, err := engine.NewSimulatedEngine(res.ChainID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to construct simulated engine")
	}

	emit(PhaseCreating)
	sess := New(res.ChainID, true,
		common.HexToAddress(res.Simulator.ACLAddress),
		common.HexToAddress(res.Simulator.KMSVerifierAddress),
		eng)

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	emit(PhaseReady)
	return sess, nil
}

// createLive 构建线上会话
func createLive(ctx context.Context, cfg *FactoryConfig, res *network.Resolution, emit func(Phase)) (*Session, error) {
	// 2. 后端模块加载（进程级一次）
	emit(PhaseLoadingBackend)
	loadErr := engine.LoadBackend(ctx)
	if cerr := checkpoint(ctx); cerr != nil {
		return nil, cerr
	}
	if loadErr != nil {
		return nil, errors.Wrap(loadErr, "failed to load FHE backend")
	}
	emit(PhaseLoadingBackendDone)

	// 3. 后端初始化（幂等）
	emit(PhaseInitializingBackend)
	initErr := engine.InitBackend(ctx)
	if cerr := checkpoint(ctx); cerr != nil {
		return nil, cerr
	}
	if initErr != nil {
		return nil, errors.Wrap(initErr, "failed to initialize FHE backend")
	}
	emit(PhaseInitializingBackendDone)

	// 4. 解析部署的密钥材料地址；格式非法是致命错误
	if cfg.KMSVerifierAddress == "" {
		return nil, types.NewConfigError("KMS verifier address is required for live network %d", res.ChainID)
	}
	if !common.IsHexAddress(cfg.KMSVerifierAddress) {
		return nil, types.NewConfigError("malformed KMS verifier address: %q", cfg.KMSVerifierAddress)
	}
	kmsAddress := common.HexToAddress(cfg.KMSVerifierAddress)

	var aclAddress common.Address
	if cfg.ACLAddress != "" {
		if !common.IsHexAddress(cfg.ACLAddress) {
			return nil, types.NewConfigError("malformed ACL address: %q", cfg.ACLAddress)
		}
		aclAddress = common.HexToAddress(cfg.ACLAddress)
	}

	if cfg.RelayerURL == "" {
		return nil, types.NewConfigError("relayer URL is required for live network %d", res.ChainID)
	}

	// 5. 公钥材料：先查缓存，未命中再从 relayer 拉取
	material, cached := loadCachedMaterial(ctx, cfg.KeyStore, res.ChainID, kmsAddress)
	if material == nil {
		fetched, fetchErr := engine.FetchKeyMaterial(ctx, cfg.RelayerURL, res.ChainID, kmsAddress)
		if cerr := checkpoint(ctx); cerr != nil {
			return nil, cerr
		}
		if fetchErr != nil {
			return nil, errors.Wrap(fetchErr, "failed to fetch key material")
		}
		material = fetched
	}

	// 6. 构建会话
	emit(PhaseCreating)
	eng, err := engine.NewRelayerEngine(&engine.RelayerConfig{
		BaseURL:  cfg.RelayerURL,
		ChainID:  res.ChainID,
		Material: material,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to construct relayer engine")
	}

	sess := New(res.ChainID, false, aclAddress, kmsAddress, eng)

	// 公钥材料回写是 best-effort：即使操作随后被判定为已取消
	// 也不回滚，缓存的材料对后续初始化仍然有效。
	if !cached {
		storeCachedMaterial(ctx, cfg.KeyStore, res.ChainID, kmsAddress, material)
	}

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	emit(PhaseReady)
	return sess, nil
}

// materialCacheKey 公钥材料的缓存键
func materialCacheKey(chainID uint64, kms common.Address) string {
	return fmt.Sprintf("fhe:pubkey:%d:%s", chainID, kms.Hex())
}

// loadCachedMaterial 尝试从缓存加载公钥材料
func loadCachedMaterial(ctx context.Context, store storage.KVStore, chainID uint64, kms common.Address) (*engine.KeyMaterial, bool) {
	if store == nil {
		return nil, false
	}

	raw, err := store.Get(ctx, materialCacheKey(chainID, kms))
	if err != nil || raw == nil {
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read cached key material")
		}
		return nil, false
	}

	var material engine.KeyMaterial
	if err := json.Unmarshal(raw, &material); err != nil {
		log.Warn().Err(err).Msg("Cached key material is corrupt, refetching")
		return nil, false
	}

	return &material, true
}

// storeCachedMaterial 回写公钥材料，失败只记日志
func storeCachedMaterial(ctx context.Context, store storage.KVStore, chainID uint64, kms common.Address, material *engine.KeyMaterial) {
	if store == nil {
		return
	}

	raw, err := json.Marshal(material)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to marshal key material for caching")
		return
	}

	if err := store.Set(ctx, materialCacheKey(chainID, kms), raw); err != nil {
		log.Warn().Err(err).Msg("Failed to cache key material")
	}
}
