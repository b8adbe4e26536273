package engine

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kashguard/go-fhe-client/internal/types"
)

// KeyMaterial 网络的公钥材料（公钥 + 公共参数）
type KeyMaterial struct {
	PublicKey    []byte `json:"publicKey"`
	PublicParams []byte `json:"publicParams"`
}

// EncryptValue 待加密的单个明文值
type EncryptValue struct {
	Type  types.FheType
	Value *big.Int
}

// EncryptRequest 批量加密请求，绑定到一组 (合约, 用户)
type EncryptRequest struct {
	ContractAddress common.Address
	UserAddress     common.Address
	Values          []EncryptValue
}

// EncryptResult 批量加密结果。
// Handles 与请求中 Values 的顺序对齐；InputProof 覆盖整个批次。
type EncryptResult struct {
	Handles    []string
	InputProof []byte
}

// HandleContractPair 一次解密请求的目标：密文句柄 + 所属合约
type HandleContractPair struct {
	Handle          string `json:"handle"`
	ContractAddress string `json:"contractAddress"`
}

// UserDecryptRequest 授权解密请求。
// 签名、公钥和时间窗口来自授权工件；后端校验签名后
// 用 PublicKey 保护返回的明文。
type UserDecryptRequest struct {
	Pairs             []HandleContractPair
	UserAddress       common.Address
	PublicKey         []byte
	Signature         []byte
	ContractAddresses []string
	StartTimestamp    int64
	DurationDays      uint64
}

// Engine 外部同态加密引擎的最小能力集。
// 密钥生成、同态运算和零知识证明全部发生在实现内部；
// 本子系统只负责会话与授权的编排。
type Engine interface {
	// ChainID 返回引擎绑定的链 ID
	ChainID() uint64

	// KeyMaterial 返回网络公钥材料
	KeyMaterial() *KeyMaterial

	// BatchEncrypt 批量加密，一次调用产出全部句柄和一份证明
	BatchEncrypt(ctx context.Context, req *EncryptRequest) (*EncryptResult, error)

	// UserDecrypt 授权解密
	UserDecrypt(ctx context.Context, req *UserDecryptRequest) (map[string]types.ClearValue, error)

	// PublicDecrypt 公共解密，仅对合约显式标记为公开的值有效
	PublicDecrypt(ctx context.Context, handles []string) (map[string]types.ClearValue, error)
}
