package engine

import "github.com/pkg/errors"

var (
	// ErrHandleNotFound 句柄在后端不存在
	ErrHandleNotFound = errors.New("ciphertext handle not found")

	// ErrHandleNotPublic 句柄未被合约标记为可公开解密
	ErrHandleNotPublic = errors.New("ciphertext handle is not marked publicly decryptable")

	// ErrUnauthorized 授权校验失败（签名、用户或合约范围不匹配）
	ErrUnauthorized = errors.New("decryption not authorized for this user/contract")
)
