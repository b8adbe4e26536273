package decrypt

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kashguard/go-fhe-client/internal/engine"
	"github.com/kashguard/go-fhe-client/internal/session"
	"github.com/kashguard/go-fhe-client/internal/signer"
	"github.com/kashguard/go-fhe-client/internal/storage"
	"github.com/kashguard/go-fhe-client/internal/types"
)

var testContract = common.HexToAddress("0x1111111111111111111111111111111111111111")

// spyEngine 记录调用并返回固定结果的引擎桩
type spyEngine struct {
	userDecryptCalls   int
	publicDecryptCalls int
	lastUserRequest    *engine.UserDecryptRequest

	userDecryptResult map[string]types.ClearValue
	userDecryptErr    error
	publicDecryptErr  error
}

func (s *spyEngine) ChainID() uint64                  { return 31337 }
func (s *spyEngine) KeyMaterial() *engine.KeyMaterial { return &engine.KeyMaterial{} }

func (s *spyEngine) BatchEncrypt(ctx context.Context, req *engine.EncryptRequest) (*engine.EncryptResult, error) {
	return nil, errors.New("not implemented")
}

func (s *spyEngine) UserDecrypt(ctx context.Context, req *engine.UserDecryptRequest) (map[string]types.ClearValue, error) {
	s.userDecryptCalls++
	s.lastUserRequest = req
	if s.userDecryptErr != nil {
		return nil, s.userDecryptErr
	}
	return s.userDecryptResult, nil
}

func (s *spyEngine) PublicDecrypt(ctx context.Context, handles []string) (map[string]types.ClearValue, error) {
	s.publicDecryptCalls++
	if s.publicDecryptErr != nil {
		return nil, s.publicDecryptErr
	}
	out := make(map[string]types.ClearValue, len(handles))
	for _, h := range handles {
		out[h] = types.NewClearValue(types.FheUint32, big.NewInt(1))
	}
	return out, nil
}

func newSpyOrchestrator(eng *spyEngine) *Orchestrator {
	sess := session.New(31337, true, common.Address{}, common.Address{}, eng)
	return NewOrchestrator(sess, storage.NewMemoryStore())
}

func testHandle(fill string) string {
	return "0x" + strings.Repeat(fill, 32)
}

func newTestSigner(t *testing.T) *signer.PrivateKeySigner {
	sgn, err := signer.GenerateSigner()
	require.NoError(t, err)
	return sgn
}

func TestDecryptEmptyRequestIsNoOp(t *testing.T) {
	eng := &spyEngine{}
	orch := newSpyOrchestrator(eng)

	// 空批次不需要签名器，也不触碰引擎
	result, err := orch.Decrypt(context.Background(), nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.Equal(t, 0, eng.userDecryptCalls)
}

func TestDecryptRequiresSigner(t *testing.T) {
	eng := &spyEngine{}
	orch := newSpyOrchestrator(eng)

	_, err := orch.Decrypt(context.Background(), []Request{{Handle: testHandle("ab"), ContractAddress: testContract.Hex()}}, nil, nil)

	var vErr *types.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 0, eng.userDecryptCalls)
}

func TestDecryptValidatesBeforeAnyEngineCall(t *testing.T) {
	eng := &spyEngine{}
	orch := newSpyOrchestrator(eng)
	sgn := newTestSigner(t)

	// 第二个请求非法：整个批次被拒绝，引擎一次都不被调用
	_, err := orch.Decrypt(context.Background(), []Request{
		{Handle: testHandle("ab"), ContractAddress: testContract.Hex()},
		{Handle: "0xshort", ContractAddress: testContract.Hex()},
	}, sgn, nil)

	var vErr *types.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 0, eng.userDecryptCalls)

	_, err = orch.Decrypt(context.Background(), []Request{
		{Handle: testHandle("ab"), ContractAddress: "not-an-address"},
	}, sgn, nil)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 0, eng.userDecryptCalls)
}

func TestDecryptDeduplicatesContracts(t *testing.T) {
	handle := testHandle("ab")
	eng := &spyEngine{userDecryptResult: map[string]types.ClearValue{
		handle: types.NewClearValue(types.FheUint32, big.NewInt(5)),
	}}
	orch := newSpyOrchestrator(eng)
	sgn := newTestSigner(t)

	// 同一合约大小写不同：授权集合去重到单个地址
	_, err := orch.Decrypt(context.Background(), []Request{
		{Handle: handle, ContractAddress: testContract.Hex()},
		{Handle: testHandle("cd"), ContractAddress: strings.ToLower(testContract.Hex())},
	}, sgn, nil)
	require.NoError(t, err)

	require.NotNil(t, eng.lastUserRequest)
	assert.Len(t, eng.lastUserRequest.ContractAddresses, 1)
	assert.Len(t, eng.lastUserRequest.Pairs, 2)
	assert.Equal(t, sgn.Address(), eng.lastUserRequest.UserAddress)
	assert.NotEmpty(t, eng.lastUserRequest.Signature)
}

func TestDecryptBackendRejection(t *testing.T) {
	boom := errors.New("kms said no")
	eng := &spyEngine{userDecryptErr: boom}
	orch := newSpyOrchestrator(eng)

	_, err := orch.Decrypt(context.Background(), []Request{
		{Handle: testHandle("ab"), ContractAddress: testContract.Hex()},
	}, newTestSigner(t), nil)

	var dErr *DecryptError
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, CodeBackendRejected, dErr.Code)
	assert.True(t, errors.Is(err, boom))
}

func TestDecryptSingleResultMissing(t *testing.T) {
	// 引擎名义上成功但结果表为空：防御性检查触发
	eng := &spyEngine{userDecryptResult: map[string]types.ClearValue{}}
	orch := newSpyOrchestrator(eng)

	_, err := orch.DecryptSingle(context.Background(), testHandle("ab"), testContract.Hex(), newTestSigner(t), nil)

	var dErr *DecryptError
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, CodeResultMissing, dErr.Code)
}

func TestDecryptSingleReturnsValue(t *testing.T) {
	handle := testHandle("ab")
	eng := &spyEngine{userDecryptResult: map[string]types.ClearValue{
		handle: types.NewClearValue(types.FheUint64, big.NewInt(42)),
	}}
	orch := newSpyOrchestrator(eng)

	// 大写句柄归一化后命中结果表
	value, err := orch.DecryptSingle(context.Background(), "0x"+strings.Repeat("AB", 32), testContract.Hex(), newTestSigner(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "42", value.String())
}

func TestDecryptCachesAuthorizationAcrossCalls(t *testing.T) {
	handle := testHandle("ab")
	eng := &spyEngine{userDecryptResult: map[string]types.ClearValue{
		handle: types.NewClearValue(types.FheUint32, big.NewInt(5)),
	}}
	orch := newSpyOrchestrator(eng)
	sgn := newTestSigner(t)
	requests := []Request{{Handle: handle, ContractAddress: testContract.Hex()}}

	_, err := orch.Decrypt(context.Background(), requests, sgn, nil)
	require.NoError(t, err)
	firstSig := eng.lastUserRequest.Signature

	// 第二次调用复用缓存的授权工件
	_, err = orch.Decrypt(context.Background(), requests, sgn, nil)
	require.NoError(t, err)
	assert.Equal(t, firstSig, eng.lastUserRequest.Signature)

	// ForceRefresh 绕过缓存，产生新的临时密钥对
	firstKey := eng.lastUserRequest.PublicKey
	_, err = orch.Decrypt(context.Background(), requests, sgn, &Options{ForceRefresh: true})
	require.NoError(t, err)
	assert.NotEqual(t, firstKey, eng.lastUserRequest.PublicKey)
}

func TestPublicDecryptEmptyIsNoOp(t *testing.T) {
	eng := &spyEngine{}
	orch := newSpyOrchestrator(eng)

	result, err := orch.PublicDecrypt(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.Equal(t, 0, eng.publicDecryptCalls)
}

func TestPublicDecryptNotPublic(t *testing.T) {
	eng := &spyEngine{publicDecryptErr: engine.ErrHandleNotPublic}
	orch := newSpyOrchestrator(eng)

	_, err := orch.PublicDecrypt(context.Background(), []string{testHandle("ab")})

	var dErr *DecryptError
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, CodeNotPublic, dErr.Code)
	// 错误信息要能直接指导修复
	assert.Contains(t, dErr.Message, "makePubliclyDecryptable")
}

func TestPublicDecryptSingleBytesNormalization(t *testing.T) {
	eng := &spyEngine{}
	orch := newSpyOrchestrator(eng)

	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = 0xab
	}

	fromBytes, err := orch.PublicDecryptSingleBytes(context.Background(), raw)
	require.NoError(t, err)
	fromText, err := orch.PublicDecryptSingle(context.Background(), testHandle("ab"))
	require.NoError(t, err)

	// 二进制与文本表示归一化到同一个键
	assert.Equal(t, fromText.String(), fromBytes.String())
}

func TestPublicDecryptRejectsMalformedHandle(t *testing.T) {
	eng := &spyEngine{}
	orch := newSpyOrchestrator(eng)

	_, err := orch.PublicDecrypt(context.Background(), []string{"0x1234"})

	var vErr *types.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 0, eng.publicDecryptCalls)
}
