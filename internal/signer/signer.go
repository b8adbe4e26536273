package signer

import (
	"context"
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
)

// Signer 签名能力接口。
// 钱包、硬件签名器或测试桩都可以实现它；本子系统只依赖这两个方法。
// 签名被拒绝（例如用户在钱包里点了取消）时错误原样向上传递，不做重试。
type Signer interface {
	// Address 返回签名者的账户地址
	Address() common.Address

	// SignTypedData 对 EIP-712 结构化数据签名
	SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error)
}

// PrivateKeySigner 基于本地私钥的签名器，用于 CLI 和测试
type PrivateKeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewPrivateKeySigner 创建私钥签名器
func NewPrivateKeySigner(key *ecdsa.PrivateKey) *PrivateKeySigner {
	return &PrivateKeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// NewPrivateKeySignerFromHex 从十六进制私钥创建签名器
func NewPrivateKeySignerFromHex(keyHex string) (*PrivateKeySigner, error) {
	keyHex = strings.TrimPrefix(keyHex, "0x")
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}
	return NewPrivateKeySigner(key), nil
}

// GenerateSigner 生成随机私钥签名器（测试用）
func GenerateSigner() (*PrivateKeySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate private key")
	}
	return NewPrivateKeySigner(key), nil
}

// Address 返回签名者地址
func (s *PrivateKeySigner) Address() common.Address {
	return s.address
}

// SignTypedData 对 EIP-712 结构化数据签名
func (s *PrivateKeySigner) SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash typed data")
	}

	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign typed data hash")
	}

	// 恢复字节调整为以太坊惯用的 27/28
	sig[64] += 27

	return sig, nil
}
