package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-fhe-client/internal/session"
	"github.com/kashguard/go-fhe-client/internal/signer"
	"github.com/kashguard/go-fhe-client/internal/storage"
	"github.com/kashguard/go-fhe-client/internal/types"
)

// Manager 授权签名管理器。
// 创建、签名、缓存并校验时间受限的解密授权工件，让重复的
// 解密请求不必每次都走一遍人工签名确认。
type Manager struct {
	cache storage.KVStore
	now   func() time.Time
}

// NewManager 创建授权签名管理器
func NewManager(cache storage.KVStore) *Manager {
	return &Manager{
		cache: cache,
		now:   time.Now,
	}
}

// LoadOrSign 返回覆盖给定合约集合的有效授权工件。
// 先按精确集合查缓存；未命中时再查该用户最近一次签出的工件，
// 它覆盖请求集合的子集时同样可用。缓存项必须重新通过有效性校验
// （过期、子集、用户匹配）才被采用，否则走签名流程产生新工件。
func (m *Manager) LoadOrSign(ctx context.Context, sess *session.Session, contractAddresses []string, sgn signer.Signer, keypair *types.KeyPair) (*Artifact, error) {
	contracts, err := normalizeContracts(contractAddresses)
	if err != nil {
		return nil, err
	}

	user := sgn.Address()
	key := m.cacheKey(sess.ChainID(), user, contracts)

	for _, candidate := range []string{key, m.latestKey(sess.ChainID(), user)} {
		cached := m.loadCached(ctx, candidate)
		if cached == nil {
			continue
		}
		if err := cached.Validate(user, contracts, m.now()); err == nil {
			log.Debug().Str("cache_key", candidate).Msg("Using cached decryption authorization")
			return cached, nil
		} else {
			log.Debug().Err(err).Str("cache_key", candidate).Msg("Cached authorization rejected")
		}
	}

	return m.sign(ctx, sess, contracts, sgn, keypair, key)
}

// Sign 无条件创建新工件，绕过缓存查找。用于显式强制刷新。
func (m *Manager) Sign(ctx context.Context, sess *session.Session, contractAddresses []string, sgn signer.Signer, keypair *types.KeyPair) (*Artifact, error) {
	contracts, err := normalizeContracts(contractAddresses)
	if err != nil {
		return nil, err
	}

	user := sgn.Address()
	key := m.cacheKey(sess.ChainID(), user, contracts)
	return m.sign(ctx, sess, contracts, sgn, keypair, key)
}

// sign 驱动签名流程并把新工件写入缓存
func (m *Manager) sign(ctx context.Context, sess *session.Session, contracts []string, sgn signer.Signer, keypair *types.KeyPair, cacheKey string) (*Artifact, error) {
	kp := keypair
	if kp == nil {
		generated, err := sess.GenerateKeypair()
		if err != nil {
			return nil, errors.Wrap(err, "failed to generate ephemeral keypair")
		}
		kp = generated
	}
	if !kp.Valid() {
		return nil, errors.New("supplied keypair is incomplete")
	}

	start := m.now().Unix()
	typedData := sess.CreateDecryptEIP712(kp.PublicKey, contracts, start, ValidityDays)

	// 签名被拒绝（用户在钱包里取消）时原样向上传递，不重试：
	// 没有新的用户意图就重试被拒的签名是滥用式的交互。
	sig, err := sgn.SignTypedData(ctx, typedData)
	if err != nil {
		return nil, err
	}

	artifact := &Artifact{
		KeyPair:           kp,
		Signature:         sig,
		UserAddress:       sgn.Address(),
		ContractAddresses: contracts,
		StartTimestamp:    start,
		DurationDays:      ValidityDays,
	}

	// 缓存写失败不致命：工件在本次调用的内存里仍然可用。
	// 除精确集合键外同时更新 latest 指针，让覆盖子集的后续请求
	// 不必重新走人工签名。
	if m.cache != nil {
		raw, err := json.Marshal(artifact)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to marshal authorization artifact for caching")
		} else {
			for _, key := range []string{cacheKey, m.latestKey(sess.ChainID(), sgn.Address())} {
				if err := m.cache.Set(ctx, key, raw); err != nil {
					log.Warn().Err(err).Str("cache_key", key).Msg("Failed to cache authorization artifact")
				}
			}
		}
	}

	return artifact, nil
}

// loadCached 尝试从缓存加载工件；任何读取/解码失败都按未命中处理
func (m *Manager) loadCached(ctx context.Context, key string) *Artifact {
	if m.cache == nil {
		return nil
	}

	raw, err := m.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("cache_key", key).Msg("Failed to read authorization cache")
		return nil
	}
	if raw == nil {
		return nil
	}

	var artifact Artifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		log.Warn().Err(err).Str("cache_key", key).Msg("Cached authorization artifact is corrupt")
		return nil
	}

	return &artifact
}

// cacheKey 缓存键：链 ID + 用户地址 + 排序去重后合约集合的 keccak
func (m *Manager) cacheKey(chainID uint64, user common.Address, sortedContracts []string) string {
	joined := strings.ToLower(strings.Join(sortedContracts, ","))
	digest := crypto.Keccak256([]byte(joined))
	return fmt.Sprintf("fhe:udsig:%d:%s:%x", chainID, strings.ToLower(user.Hex()), digest)
}

// latestKey 该 (链, 用户) 最近一次签出工件的指针键。
// 精确集合键未命中时的第二候选：工件的覆盖校验在 Validate 里完成，
// 指针本身不携带集合信息。
func (m *Manager) latestKey(chainID uint64, user common.Address) string {
	return fmt.Sprintf("fhe:udsig:%d:%s:latest", chainID, strings.ToLower(user.Hex()))
}

// normalizeContracts 校验、去重并排序合约地址集合
func normalizeContracts(addresses []string) ([]string, error) {
	if len(addresses) == 0 {
		return nil, errors.New("at least one contract address is required")
	}

	seen := make(map[string]bool, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		checksummed, err := types.ValidateContractAddress(addr)
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(checksummed.Hex())
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, checksummed.Hex())
	}

	sort.Strings(out)
	return out, nil
}
