package session

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/kashguard/go-fhe-client/internal/encrypt"
	"github.com/kashguard/go-fhe-client/internal/engine"
	"github.com/kashguard/go-fhe-client/internal/types"
)

// Session 绑定到单个网络的不透明会话能力对象。
// 成功初始化后创建一次；abort/dispose/reinit 时整体丢弃，
// 新会话原子替换旧会话，从不原地修改。
type Session struct {
	chainID            uint64
	isSimulated        bool
	aclAddress         common.Address
	kmsVerifierAddress common.Address
	eng                engine.Engine
}

// New 从已构建的引擎组装会话。
// 常规路径走 Create（工厂）；直接构造用于嵌入自有引擎的场景和测试。
func New(chainID uint64, isSimulated bool, aclAddress, kmsVerifierAddress common.Address, eng engine.Engine) *Session {
	return &Session{
		chainID:            chainID,
		isSimulated:        isSimulated,
		aclAddress:         aclAddress,
		kmsVerifierAddress: kmsVerifierAddress,
		eng:                eng,
	}
}

// ChainID 返回会话绑定的链 ID
func (s *Session) ChainID() uint64 {
	return s.chainID
}

// IsSimulated 返回是否为模拟网络会话
func (s *Session) IsSimulated() bool {
	return s.isSimulated
}

// ACLAddress 返回访问控制合约地址
func (s *Session) ACLAddress() common.Address {
	return s.aclAddress
}

// KMSVerifierAddress 返回密钥管理校验合约地址
func (s *Session) KMSVerifierAddress() common.Address {
	return s.kmsVerifierAddress
}

// Engine 返回底层引擎
func (s *Session) Engine() engine.Engine {
	return s.eng
}

// KeyMaterial 返回网络公钥材料
func (s *Session) KeyMaterial() *engine.KeyMaterial {
	return s.eng.KeyMaterial()
}

// CreateEncryptedInput 打开绑定到 (合约, 用户) 的加密输入 builder
func (s *Session) CreateEncryptedInput(contract, user common.Address) *encrypt.Builder {
	return encrypt.NewBuilder(s.eng, contract, user)
}

// UserDecrypt 执行授权解密
func (s *Session) UserDecrypt(ctx context.Context, req *engine.UserDecryptRequest) (map[string]types.ClearValue, error) {
	return s.eng.UserDecrypt(ctx, req)
}

// PublicDecrypt 执行公共解密
func (s *Session) PublicDecrypt(ctx context.Context, handles []string) (map[string]types.ClearValue, error) {
	return s.eng.PublicDecrypt(ctx, handles)
}

// GenerateKeypair 生成用户解密用的临时密钥对
func (s *Session) GenerateKeypair() (*types.KeyPair, error) {
	return types.GenerateKeyPair()
}

// CreateDecryptEIP712 构造授权解密请求的可签名结构化负载。
// 负载把临时公钥、合约地址集合、签发时间和有效期绑定在一起，
// 由 KMS 校验合约作为 verifying contract。
func (s *Session) CreateDecryptEIP712(publicKey []byte, contractAddresses []string, startTimestamp int64, durationDays uint64) apitypes.TypedData {
	contracts := make([]interface{}, 0, len(contractAddresses))
	for _, addr := range contractAddresses {
		contracts = append(contracts, addr)
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"UserDecryptRequestVerification": []apitypes.Type{
				{Name: "publicKey", Type: "bytes"},
				{Name: "contractAddresses", Type: "address[]"},
				{Name: "startTimestamp", Type: "uint256"},
				{Name: "durationDays", Type: "uint256"},
			},
		},
		PrimaryType: "UserDecryptRequestVerification",
		Domain: apitypes.TypedDataDomain{
			Name:              "Decryption",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(int64(s.chainID)),
			VerifyingContract: s.kmsVerifierAddress.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         hexutil.Encode(publicKey),
			"contractAddresses": contracts,
			"startTimestamp":    new(big.Int).SetInt64(startTimestamp).String(),
			"durationDays":      new(big.Int).SetUint64(durationDays).String(),
		},
	}
}
