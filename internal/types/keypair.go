package types

import (
	"crypto/rand"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/box"
)

// KeyPair 用户解密用的临时密钥对（X25519）。
// 私钥只存在于客户端；公钥随授权签名一起提交给后端，
// 后端用它加密返回的明文。
type KeyPair struct {
	PublicKey  []byte `json:"publicKey"`
	PrivateKey []byte `json:"privateKey"`
}

// GenerateKeyPair 生成临时密钥对
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate ephemeral keypair")
	}
	return &KeyPair{
		PublicKey:  pub[:],
		PrivateKey: priv[:],
	}, nil
}

// Valid 检查密钥对是否完整
func (kp *KeyPair) Valid() bool {
	return kp != nil && len(kp.PublicKey) == 32 && len(kp.PrivateKey) == 32
}
