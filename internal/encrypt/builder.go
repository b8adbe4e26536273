package encrypt

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/kashguard/go-fhe-client/internal/engine"
	"github.com/kashguard/go-fhe-client/internal/types"
)

// ErrBuilderSpent finalize 之后 builder 即作废，不可复用
var ErrBuilderSpent = errors.New("encrypted input builder already finalized")

// typeSpec 单个逻辑类型的累积规格。
// 类型到累积原语的映射是一张固定表，保证映射可审计且穷尽，
// 不在调用点做动态分支。
type typeSpec struct {
	fheType types.FheType
}

var typeRegistry = map[types.FheType]typeSpec{
	types.FheBool:    {fheType: types.FheBool},
	types.FheUint8:   {fheType: types.FheUint8},
	types.FheUint16:  {fheType: types.FheUint16},
	types.FheUint32:  {fheType: types.FheUint32},
	types.FheUint64:  {fheType: types.FheUint64},
	types.FheUint128: {fheType: types.FheUint128},
	types.FheUint256: {fheType: types.FheUint256},
	types.FheAddress: {fheType: types.FheAddress},
}

// Builder 一次性的加密输入累积器，绑定到 (合约, 用户, 引擎)。
// 值按加入顺序累积，Finalize 以一次批量调用产出顺序对齐的句柄
// 和一份覆盖整个批次的证明。
type Builder struct {
	eng      engine.Engine
	contract common.Address
	user     common.Address

	mu     sync.Mutex
	values []engine.EncryptValue
	spent  bool
}

// NewBuilder 创建加密输入 builder
func NewBuilder(eng engine.Engine, contract, user common.Address) *Builder {
	return &Builder{
		eng:      eng,
		contract: contract,
		user:     user,
	}
}

// add 按注册表映射累积一个值
func (b *Builder) add(t types.FheType, value *big.Int) *Builder {
	spec, ok := typeRegistry[t]
	if !ok {
		// 注册表穷尽所有公开的 Add 方法；走到这里说明实现有误
		panic(errors.Errorf("fhe type %d not in type registry", uint8(t)))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.values = append(b.values, engine.EncryptValue{
		Type:  spec.fheType,
		Value: new(big.Int).Set(value),
	})
	return b
}

// AddBool 加入布尔值
func (b *Builder) AddBool(v bool) *Builder {
	value := big.NewInt(0)
	if v {
		value.SetInt64(1)
	}
	return b.add(types.FheBool, value)
}

// Add8 加入 8 位无符号整数
func (b *Builder) Add8(v uint8) *Builder {
	return b.add(types.FheUint8, new(big.Int).SetUint64(uint64(v)))
}

// Add16 加入 16 位无符号整数
func (b *Builder) Add16(v uint16) *Builder {
	return b.add(types.FheUint16, new(big.Int).SetUint64(uint64(v)))
}

// Add32 加入 32 位无符号整数
func (b *Builder) Add32(v uint32) *Builder {
	return b.add(types.FheUint32, new(big.Int).SetUint64(uint64(v)))
}

// Add64 加入 64 位无符号整数
func (b *Builder) Add64(v uint64) *Builder {
	return b.add(types.FheUint64, new(big.Int).SetUint64(v))
}

// Add128 加入 128 位无符号整数
func (b *Builder) Add128(v *big.Int) *Builder {
	return b.add(types.FheUint128, v)
}

// Add256 加入 256 位无符号整数
func (b *Builder) Add256(v *big.Int) *Builder {
	return b.add(types.FheUint256, v)
}

// AddAddress 加入账户地址
func (b *Builder) AddAddress(v common.Address) *Builder {
	return b.add(types.FheAddress, new(big.Int).SetBytes(v.Bytes()))
}

// Len 返回已累积的值数量
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.values)
}

// Finalize 执行一次批量加密调用。
// 返回的句柄数组与值的加入顺序对齐；builder 随即作废。
func (b *Builder) Finalize(ctx context.Context) (*engine.EncryptResult, error) {
	b.mu.Lock()
	if b.spent {
		b.mu.Unlock()
		return nil, errors.WithStack(ErrBuilderSpent)
	}
	if len(b.values) == 0 {
		b.mu.Unlock()
		return nil, errors.New("no values to encrypt")
	}
	b.spent = true
	values := b.values
	b.mu.Unlock()

	result, err := b.eng.BatchEncrypt(ctx, &engine.EncryptRequest{
		ContractAddress: b.contract,
		UserAddress:     b.user,
		Values:          values,
	})
	if err != nil {
		return nil, errors.Wrap(err, "batched encrypt call failed")
	}

	return result, nil
}
