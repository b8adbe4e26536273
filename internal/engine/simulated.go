package engine

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/kashguard/go-fhe-client/internal/types"
)

// SimulatedEngine 进程内模拟引擎。
// 本地开发网络上没有真实的密钥管理服务，明文用进程内的
// AEAD 密钥封存，句柄由 keccak 派生。语义与线上引擎一致：
// 授权解密校验用户与合约范围，公共解密要求句柄被显式标记。
type SimulatedEngine struct {
	chainID  uint64
	material *KeyMaterial
	aead     interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}

	mu      sync.RWMutex
	counter uint64
	entries map[string]*sealedEntry
}

// sealedEntry 单个密文句柄的存储项
type sealedEntry struct {
	fheType  types.FheType
	nonce    []byte
	sealed   []byte
	contract common.Address
	user     common.Address
	public   bool
}

// NewSimulatedEngine 创建进程内模拟引擎
func NewSimulatedEngine(chainID uint64) (*SimulatedEngine, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(err, "failed to generate sealing key")
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create sealing cipher")
	}

	publicKey := make([]byte, 32)
	if _, err := rand.Read(publicKey); err != nil {
		return nil, errors.Wrap(err, "failed to generate key material")
	}

	return &SimulatedEngine{
		chainID: chainID,
		material: &KeyMaterial{
			PublicKey:    publicKey,
			PublicParams: []byte("simulated-public-params"),
		},
		aead:    aead,
		entries: make(map[string]*sealedEntry),
	}, nil
}

// ChainID 返回链 ID
func (e *SimulatedEngine) ChainID() uint64 {
	return e.chainID
}

// KeyMaterial 返回模拟公钥材料
func (e *SimulatedEngine) KeyMaterial() *KeyMaterial {
	return e.material
}

// BatchEncrypt 批量加密
func (e *SimulatedEngine) BatchEncrypt(ctx context.Context, req *EncryptRequest) (*EncryptResult, error) {
	if req == nil || len(req.Values) == 0 {
		return nil, errors.New("encrypt request is empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	handles := make([]string, 0, len(req.Values))
	for _, value := range req.Values {
		if err := types.ValidateClearValue(value.Type, value.Value); err != nil {
			return nil, errors.Wrap(err, "value rejected by backend")
		}

		e.counter++
		handle := e.deriveHandleLocked(req.ContractAddress, req.UserAddress)

		nonce := make([]byte, chacha20poly1305.NonceSize)
		if _, err := rand.Read(nonce); err != nil {
			return nil, errors.Wrap(err, "failed to generate nonce")
		}

		sealed := e.aead.Seal(nil, nonce, value.Value.Bytes(), []byte(handle))
		e.entries[handle] = &sealedEntry{
			fheType:  value.Type,
			nonce:    nonce,
			sealed:   sealed,
			contract: req.ContractAddress,
			user:     req.UserAddress,
		}
		handles = append(handles, handle)
	}

	// 证明覆盖整个批次：对句柄串联做 keccak，线上由输入校验合约验证
	proof := crypto.Keccak256([]byte(strings.Join(handles, "")))

	return &EncryptResult{
		Handles:    handles,
		InputProof: proof,
	}, nil
}

// deriveHandleLocked 派生确定性句柄（需持有锁）
func (e *SimulatedEngine) deriveHandleLocked(contract, user common.Address) string {
	var counterBytes [8]byte
	binary.BigEndian.PutUint64(counterBytes[:], e.counter)
	raw := crypto.Keccak256(contract.Bytes(), user.Bytes(), counterBytes[:])
	handle, _ := types.HandleFromBytes(raw)
	return handle
}

// UserDecrypt 授权解密
func (e *SimulatedEngine) UserDecrypt(ctx context.Context, req *UserDecryptRequest) (map[string]types.ClearValue, error) {
	if req == nil {
		return nil, errors.New("decrypt request is nil")
	}
	if len(req.PublicKey) != 32 || len(req.Signature) == 0 {
		return nil, ErrUnauthorized
	}

	covered := make(map[string]bool, len(req.ContractAddresses))
	for _, addr := range req.ContractAddresses {
		covered[strings.ToLower(addr)] = true
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]types.ClearValue, len(req.Pairs))
	for _, pair := range req.Pairs {
		handle, err := types.NormalizeHandle(pair.Handle)
		if err != nil {
			return nil, errors.Wrap(err, "malformed handle")
		}

		entry, ok := e.entries[handle]
		if !ok {
			return nil, errors.Wrapf(ErrHandleNotFound, "handle %s", handle)
		}
		if entry.user != req.UserAddress {
			return nil, ErrUnauthorized
		}
		if !covered[strings.ToLower(entry.contract.Hex())] {
			return nil, ErrUnauthorized
		}

		value, err := e.openLocked(handle, entry)
		if err != nil {
			return nil, err
		}
		out[handle] = value
	}

	return out, nil
}

// PublicDecrypt 公共解密
func (e *SimulatedEngine) PublicDecrypt(ctx context.Context, handles []string) (map[string]types.ClearValue, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]types.ClearValue, len(handles))
	for _, h := range handles {
		handle, err := types.NormalizeHandle(h)
		if err != nil {
			return nil, errors.Wrap(err, "malformed handle")
		}

		entry, ok := e.entries[handle]
		if !ok {
			return nil, errors.Wrapf(ErrHandleNotFound, "handle %s", handle)
		}
		if !entry.public {
			return nil, errors.Wrapf(ErrHandleNotPublic, "handle %s", handle)
		}

		value, err := e.openLocked(handle, entry)
		if err != nil {
			return nil, err
		}
		out[handle] = value
	}

	return out, nil
}

// openLocked 解封一个存储项（需持有读锁）
func (e *SimulatedEngine) openLocked(handle string, entry *sealedEntry) (types.ClearValue, error) {
	plaintext, err := e.aead.Open(nil, entry.nonce, entry.sealed, []byte(handle))
	if err != nil {
		return types.ClearValue{}, errors.Wrap(err, "failed to unseal stored value")
	}

	value := new(big.Int).SetBytes(plaintext)
	return types.NewClearValue(entry.fheType, value), nil
}

// MarkPublic 将句柄标记为可公开解密。
// 线上由合约调用 makePubliclyDecryptable 完成；模拟引擎用它
// 复现同一语义。
func (e *SimulatedEngine) MarkPublic(handle string) error {
	normalized, err := types.NormalizeHandle(handle)
	if err != nil {
		return errors.Wrap(err, "malformed handle")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.entries[normalized]
	if !ok {
		return errors.Wrapf(ErrHandleNotFound, "handle %s", normalized)
	}
	entry.public = true
	return nil
}
