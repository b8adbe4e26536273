package decrypt

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/kashguard/go-fhe-client/internal/auth"
	"github.com/kashguard/go-fhe-client/internal/engine"
	"github.com/kashguard/go-fhe-client/internal/session"
	"github.com/kashguard/go-fhe-client/internal/signer"
	"github.com/kashguard/go-fhe-client/internal/storage"
	"github.com/kashguard/go-fhe-client/internal/types"
)

// Request 一次解密请求：(密文句柄, 合约地址)。纯值对象。
type Request struct {
	Handle          string
	ContractAddress string
}

// Options 授权解密的可选参数
type Options struct {
	// ForceRefresh 强制签发新的授权工件，绕过缓存
	ForceRefresh bool

	// KeyPair 调用方提供的临时密钥对；nil 时自动生成
	KeyPair *types.KeyPair
}

// Orchestrator 解密编排器。
// 对请求去重合约地址、获取覆盖它们的授权工件，再调用会话的
// 解密原语；公共解密路径完全绕过授权。
type Orchestrator struct {
	sess *session.Session
	auth *auth.Manager
}

// NewOrchestrator 创建解密编排器
func NewOrchestrator(sess *session.Session, cache storage.KVStore) *Orchestrator {
	return &Orchestrator{
		sess: sess,
		auth: auth.NewManager(cache),
	}
}

// Decrypt 授权解密一批 (句柄, 合约) 请求。
// 空请求直接返回空表，不触碰会话和签名器。所有校验在任何
// 网络交互之前完成，不会出现部分发送的批次。
func (o *Orchestrator) Decrypt(ctx context.Context, requests []Request, sgn signer.Signer, opts *Options) (map[string]types.ClearValue, error) {
	if len(requests) == 0 {
		return map[string]types.ClearValue{}, nil
	}
	if sgn == nil {
		return nil, types.NewValidationError("signer", "signer is required for authorized decryption")
	}
	if opts == nil {
		opts = &Options{}
	}

	// 1. 请求校验
	pairs := make([]engine.HandleContractPair, 0, len(requests))
	contractSet := make(map[string]string)
	for i, req := range requests {
		handle, err := types.NormalizeHandle(req.Handle)
		if err != nil {
			return nil, types.NewValidationError("handle", "request %d: %v", i, err)
		}
		addr, err := types.ValidateContractAddress(req.ContractAddress)
		if err != nil {
			return nil, types.NewValidationError("contractAddress", "request %d: %v", i, err)
		}

		pairs = append(pairs, engine.HandleContractPair{
			Handle:          handle,
			ContractAddress: addr.Hex(),
		})
		contractSet[strings.ToLower(addr.Hex())] = addr.Hex()
	}

	// 2. 去重后的合约集合决定需要哪份授权工件
	contracts := make([]string, 0, len(contractSet))
	for _, addr := range contractSet {
		contracts = append(contracts, addr)
	}
	sort.Strings(contracts)

	var artifact *auth.Artifact
	var err error
	if opts.ForceRefresh {
		artifact, err = o.auth.Sign(ctx, o.sess, contracts, sgn, opts.KeyPair)
	} else {
		artifact, err = o.auth.LoadOrSign(ctx, o.sess, contracts, sgn, opts.KeyPair)
	}
	if err != nil {
		return nil, err
	}

	// 3. 调用会话的授权解密原语
	result, err := o.sess.UserDecrypt(ctx, &engine.UserDecryptRequest{
		Pairs:             pairs,
		UserAddress:       artifact.UserAddress,
		PublicKey:         artifact.KeyPair.PublicKey,
		Signature:         artifact.Signature,
		ContractAddresses: artifact.ContractAddresses,
		StartTimestamp:    artifact.StartTimestamp,
		DurationDays:      artifact.DurationDays,
	})
	if err != nil {
		return nil, NewDecryptError(CodeBackendRejected, err, "backend rejected the decryption call")
	}

	return result, nil
}

// DecryptSingle 解密单个句柄。
// 结果表中缺少句柄时返回 RESULT_MISSING——后端行为正常时
// 不应发生，属于防御性检查。
func (o *Orchestrator) DecryptSingle(ctx context.Context, handle, contractAddress string, sgn signer.Signer, opts *Options) (types.ClearValue, error) {
	result, err := o.Decrypt(ctx, []Request{{Handle: handle, ContractAddress: contractAddress}}, sgn, opts)
	if err != nil {
		return types.ClearValue{}, err
	}

	normalized, err := types.NormalizeHandle(handle)
	if err != nil {
		return types.ClearValue{}, types.NewValidationError("handle", "%v", err)
	}

	value, ok := result[normalized]
	if !ok {
		return types.ClearValue{}, NewDecryptError(CodeResultMissing, nil, "decryption succeeded but handle %s is missing from the result", normalized)
	}

	return value, nil
}

// DecryptBatch Decrypt 的别名包装，强调批量语义
func (o *Orchestrator) DecryptBatch(ctx context.Context, requests []Request, sgn signer.Signer, opts *Options) (map[string]types.ClearValue, error) {
	return o.Decrypt(ctx, requests, sgn, opts)
}

// PublicDecrypt 公共解密：无签名器、无工件、无按用户授权。
// 只对发行合约显式标记为可公开解密的值有效。
func (o *Orchestrator) PublicDecrypt(ctx context.Context, handles []string) (map[string]types.ClearValue, error) {
	if len(handles) == 0 {
		return map[string]types.ClearValue{}, nil
	}

	normalized := make([]string, 0, len(handles))
	for i, h := range handles {
		n, err := types.NormalizeHandle(h)
		if err != nil {
			return nil, types.NewValidationError("handle", "handle %d: %v", i, err)
		}
		normalized = append(normalized, n)
	}

	result, err := o.sess.PublicDecrypt(ctx, normalized)
	if err != nil {
		if errors.Is(err, engine.ErrHandleNotPublic) {
			// 这里的失败几乎总是合约配置问题而非瞬时故障，
			// 错误信息要能直接指导修复
			return nil, NewDecryptError(CodeNotPublic, err,
				"the value must be explicitly marked publicly decryptable by the issuing contract (e.g. via makePubliclyDecryptable)")
		}
		return nil, NewDecryptError(CodeBackendRejected, err, "backend rejected the public decryption call")
	}

	return result, nil
}

// PublicDecryptSingle 公共解密单个句柄
func (o *Orchestrator) PublicDecryptSingle(ctx context.Context, handle string) (types.ClearValue, error) {
	result, err := o.PublicDecrypt(ctx, []string{handle})
	if err != nil {
		return types.ClearValue{}, err
	}

	normalized, err := types.NormalizeHandle(handle)
	if err != nil {
		return types.ClearValue{}, types.NewValidationError("handle", "%v", err)
	}

	value, ok := result[normalized]
	if !ok {
		return types.ClearValue{}, NewDecryptError(CodeResultMissing, nil, "public decryption succeeded but handle %s is missing from the result", normalized)
	}

	return value, nil
}

// PublicDecryptSingleBytes 以二进制句柄形式公共解密单个句柄。
// 二进制与文本表示归一化到同一个键。
func (o *Orchestrator) PublicDecryptSingleBytes(ctx context.Context, handle []byte) (types.ClearValue, error) {
	text, err := types.HandleFromBytes(handle)
	if err != nil {
		return types.ClearValue{}, types.NewValidationError("handle", "%v", err)
	}
	return o.PublicDecryptSingle(ctx, text)
}
