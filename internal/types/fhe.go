package types

import (
	"math/big"

	"github.com/pkg/errors"
)

// FheType 同态加密明文的逻辑类型
type FheType uint8

const (
	FheBool FheType = iota
	FheUint8
	FheUint16
	FheUint32
	FheUint64
	FheUint128
	FheUint256
	FheAddress
)

// fheTypeNames 类型名称表
var fheTypeNames = map[FheType]string{
	FheBool:    "ebool",
	FheUint8:   "euint8",
	FheUint16:  "euint16",
	FheUint32:  "euint32",
	FheUint64:  "euint64",
	FheUint128: "euint128",
	FheUint256: "euint256",
	FheAddress: "eaddress",
}

// fheTypeBits 各类型的明文位宽（bool 为 1，address 为 160）
var fheTypeBits = map[FheType]uint{
	FheBool:    1,
	FheUint8:   8,
	FheUint16:  16,
	FheUint32:  32,
	FheUint64:  64,
	FheUint128: 128,
	FheUint256: 256,
	FheAddress: 160,
}

// String 返回类型名称
func (t FheType) String() string {
	if name, ok := fheTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Bits 返回明文位宽；未知类型返回 0
func (t FheType) Bits() uint {
	return fheTypeBits[t]
}

// Valid 检查是否为已知类型
func (t FheType) Valid() bool {
	_, ok := fheTypeBits[t]
	return ok
}

// ValidateClearValue 检查明文值是否在声明类型的取值范围内。
// 该检查是建议性的：后端同样会拒绝越界值，但提前检查能给出更清晰的错误。
func ValidateClearValue(t FheType, value *big.Int) error {
	if value == nil {
		return errors.New("clear value is nil")
	}
	if !t.Valid() {
		return errors.Errorf("unknown fhe type: %d", uint8(t))
	}
	if value.Sign() < 0 {
		return errors.Errorf("%s value must not be negative", t)
	}
	if value.BitLen() > int(t.Bits()) {
		return errors.Errorf("%s value out of range: needs %d bits, max %d", t, value.BitLen(), t.Bits())
	}
	return nil
}

// ClearValue 解密得到的明文值
type ClearValue struct {
	Type  FheType
	value *big.Int
}

// NewClearValue 创建明文值
func NewClearValue(t FheType, v *big.Int) ClearValue {
	return ClearValue{Type: t, value: new(big.Int).Set(v)}
}

// NewClearBool 创建布尔明文值
func NewClearBool(b bool) ClearValue {
	v := big.NewInt(0)
	if b {
		v.SetInt64(1)
	}
	return ClearValue{Type: FheBool, value: v}
}

// Big 返回底层整数值（拷贝）
func (v ClearValue) Big() *big.Int {
	if v.value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v.value)
}

// Bool 布尔解释（非零即真）
func (v ClearValue) Bool() bool {
	return v.value != nil && v.value.Sign() != 0
}

// Uint64 返回 uint64 解释；越界时截断由调用方自行避免
func (v ClearValue) Uint64() uint64 {
	if v.value == nil {
		return 0
	}
	return v.value.Uint64()
}

// String 十进制字符串表示
func (v ClearValue) String() string {
	if v.value == nil {
		return "0"
	}
	return v.value.String()
}
