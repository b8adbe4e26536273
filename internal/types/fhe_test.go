package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateClearValue(t *testing.T) {
	tests := []struct {
		name    string
		fheType FheType
		value   *big.Int
		wantErr bool
	}{
		{"bool zero", FheBool, big.NewInt(0), false},
		{"bool one", FheBool, big.NewInt(1), false},
		{"bool two", FheBool, big.NewInt(2), true},
		{"uint8 max", FheUint8, big.NewInt(255), false},
		{"uint8 overflow", FheUint8, big.NewInt(256), true},
		{"uint8 negative", FheUint8, big.NewInt(-1), true},
		{"uint16 max", FheUint16, big.NewInt(65535), false},
		{"uint16 overflow", FheUint16, big.NewInt(65536), true},
		{"uint64 max", FheUint64, new(big.Int).SetUint64(^uint64(0)), false},
		{"uint128 boundary", FheUint128, new(big.Int).Lsh(big.NewInt(1), 128), true},
		{"uint256 in range", FheUint256, new(big.Int).Lsh(big.NewInt(1), 255), false},
		{"address in range", FheAddress, new(big.Int).Lsh(big.NewInt(1), 159), false},
		{"address overflow", FheAddress, new(big.Int).Lsh(big.NewInt(1), 160), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateClearValue(tt.fheType, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateClearValueNil(t *testing.T) {
	assert.Error(t, ValidateClearValue(FheUint32, nil))
}

func TestValidateClearValueUnknownType(t *testing.T) {
	assert.Error(t, ValidateClearValue(FheType(99), big.NewInt(1)))
}

func TestClearValue(t *testing.T) {
	v := NewClearValue(FheUint32, big.NewInt(42))
	assert.Equal(t, "42", v.String())
	assert.Equal(t, uint64(42), v.Uint64())
	assert.True(t, v.Bool())

	b := NewClearBool(false)
	assert.False(t, b.Bool())
	assert.Equal(t, "0", b.String())
}

func TestClearValueBigReturnsCopy(t *testing.T) {
	v := NewClearValue(FheUint64, big.NewInt(7))
	v.Big().SetInt64(99)
	assert.Equal(t, "7", v.String())
}

func TestGenerateKeyPair(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.True(t, kp.Valid())
	assert.Len(t, kp.PublicKey, 32)
	assert.Len(t, kp.PrivateKey, 32)

	// 两次生成必须不同
	kp2, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.NotEqual(t, kp.PrivateKey, kp2.PrivateKey)
}
