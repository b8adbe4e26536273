package types

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// HandleLength 密文句柄的字节长度
const HandleLength = 32

// NormalizeHandle 将十六进制句柄归一化为小写 0x 前缀形式。
// 二进制表示与文本表示必须映射到同一个键，否则结果 map 查找会失配。
func NormalizeHandle(handle string) (string, error) {
	h := strings.TrimSpace(handle)
	if h == "" {
		return "", errors.New("handle is empty")
	}
	h = strings.ToLower(h)
	if !strings.HasPrefix(h, "0x") {
		h = "0x" + h
	}
	raw, err := hex.DecodeString(h[2:])
	if err != nil {
		return "", errors.Wrap(err, "handle is not valid hex")
	}
	if len(raw) != HandleLength {
		return "", errors.Errorf("handle must be %d bytes, got %d", HandleLength, len(raw))
	}
	return h, nil
}

// HandleFromBytes 将二进制句柄转为规范文本形式
func HandleFromBytes(raw []byte) (string, error) {
	if len(raw) != HandleLength {
		return "", errors.Errorf("handle must be %d bytes, got %d", HandleLength, len(raw))
	}
	return "0x" + hex.EncodeToString(raw), nil
}

// IsValidHandle 检查句柄格式
func IsValidHandle(handle string) bool {
	_, err := NormalizeHandle(handle)
	return err == nil
}

// ValidateContractAddress 检查合约地址格式并返回校验和形式
func ValidateContractAddress(address string) (common.Address, error) {
	if !common.IsHexAddress(address) {
		return common.Address{}, errors.Errorf("invalid contract address: %q", address)
	}
	return common.HexToAddress(address), nil
}
