package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHandle(t *testing.T) {
	raw := strings.Repeat("ab", 32)

	// 带前缀、不带前缀、大写都归一化到同一个键
	withPrefix, err := NormalizeHandle("0x" + raw)
	require.NoError(t, err)
	withoutPrefix, err := NormalizeHandle(raw)
	require.NoError(t, err)
	upper, err := NormalizeHandle("0X" + strings.ToUpper(raw))
	require.NoError(t, err)

	assert.Equal(t, withPrefix, withoutPrefix)
	assert.Equal(t, withPrefix, upper)
	assert.Equal(t, "0x"+raw, withPrefix)
}

func TestNormalizeHandleRejectsBadInput(t *testing.T) {
	for _, input := range []string{"", "0x", "0x1234", "0x" + strings.Repeat("zz", 32), strings.Repeat("ab", 33)} {
		_, err := NormalizeHandle(input)
		assert.Error(t, err, "input %q should be rejected", input)
	}
}

func TestHandleFromBytes(t *testing.T) {
	raw := make([]byte, HandleLength)
	for i := range raw {
		raw[i] = byte(i)
	}

	text, err := HandleFromBytes(raw)
	require.NoError(t, err)

	// 二进制与文本表示解析到同一个键
	normalized, err := NormalizeHandle(text)
	require.NoError(t, err)
	assert.Equal(t, text, normalized)

	_, err = HandleFromBytes(raw[:31])
	assert.Error(t, err)
}

func TestValidateContractAddress(t *testing.T) {
	addr, err := ValidateContractAddress("0x8ba1f109551bd432803012645ac136ddd64dba72")
	require.NoError(t, err)
	assert.Equal(t, "0x8ba1f109551bD432803012645Ac136ddd64DBA72", addr.Hex())

	_, err = ValidateContractAddress("not-an-address")
	assert.Error(t, err)

	_, err = ValidateContractAddress("0x1234")
	assert.Error(t, err)
}
