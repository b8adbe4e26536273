package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kashguard/go-fhe-client/internal/engine"
	"github.com/kashguard/go-fhe-client/internal/storage"
	"github.com/kashguard/go-fhe-client/internal/types"
)

const (
	testACL = "0x50157CFfD6bBFA2DECe204a89ec419c23ef5755D"
	testKMS = "0x12B064FB845C1cc05e9493856a1D637a73e944bE"
	testIV  = "0x901F8942346f7AB3a01F6D7613119Bca447Bb030"
)

// newSimulatorServer 返回一个表现为兼容本地模拟节点的 httptest 服务器
func newSimulatorServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			ID     int    `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "eth_chainId":
			resp["result"] = "0x7a69"
		case "fhevm_relayer_metadata":
			resp["result"] = map[string]string{
				"aclAddress":           testACL,
				"kmsVerifierAddress":   testKMS,
				"inputVerifierAddress": testIV,
			}
		default:
			resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found"}
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestCreateSimulatedSession(t *testing.T) {
	server := newSimulatorServer(t)
	defer server.Close()

	var phases []Phase
	sess, err := Create(context.Background(), &FactoryConfig{
		RPCEndpoint:       server.URL,
		SimulatedNetworks: map[uint64]string{31337: server.URL},
		OnPhase:           func(p Phase) { phases = append(phases, p) },
	})
	require.NoError(t, err)

	assert.True(t, sess.IsSimulated())
	assert.Equal(t, uint64(31337), sess.ChainID())
	assert.Equal(t, common.HexToAddress(testACL), sess.ACLAddress())
	assert.Equal(t, common.HexToAddress(testKMS), sess.KMSVerifierAddress())
	assert.NotNil(t, sess.KeyMaterial())

	// 模拟路径的阶段序列
	assert.Equal(t, []Phase{PhaseResolving, PhaseSimulatedSession, PhaseCreating, PhaseReady}, phases)
}

func TestCreateRequiresProviderOrEndpoint(t *testing.T) {
	_, err := Create(context.Background(), &FactoryConfig{})

	var cfgErr *types.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestCreateCancelledBeforeCompletion(t *testing.T) {
	server := newSimulatorServer(t)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Create(ctx, &FactoryConfig{
		RPCEndpoint:       server.URL,
		SimulatedNetworks: map[uint64]string{31337: server.URL},
	})
	// 取消必须以区分于普通失败的错误类型上抛
	assert.True(t, types.IsAborted(err), "expected aborted error, got %v", err)
}

func TestCreateLiveSessionFromCachedMaterial(t *testing.T) {
	// 预置公钥材料缓存，线上路径无需访问 relayer 即可完成构建
	keyStore := storage.NewMemoryStore()
	material := &engine.KeyMaterial{PublicKey: []byte{1, 2, 3}, PublicParams: []byte{4, 5}}
	raw, err := json.Marshal(material)
	require.NoError(t, err)

	chainID := uint64(8009)
	require.NoError(t, keyStore.Set(context.Background(), materialCacheKey(chainID, common.HexToAddress(testKMS)), raw))

	var phases []Phase
	sess, err := Create(context.Background(), &FactoryConfig{
		RPCEndpoint:        "http://unused.invalid",
		ExplicitChainID:    &chainID,
		RelayerURL:         "https://relayer.example.com",
		KMSVerifierAddress: testKMS,
		ACLAddress:         testACL,
		KeyStore:           keyStore,
		OnPhase:            func(p Phase) { phases = append(phases, p) },
	})
	require.NoError(t, err)

	assert.False(t, sess.IsSimulated())
	assert.Equal(t, chainID, sess.ChainID())
	assert.Equal(t, []byte{1, 2, 3}, sess.KeyMaterial().PublicKey)

	assert.Equal(t, []Phase{
		PhaseResolving,
		PhaseLoadingBackend, PhaseLoadingBackendDone,
		PhaseInitializingBackend, PhaseInitializingBackendDone,
		PhaseCreating, PhaseReady,
	}, phases)
}

func TestCreateLiveSessionMalformedKMSAddress(t *testing.T) {
	chainID := uint64(8009)
	_, err := Create(context.Background(), &FactoryConfig{
		RPCEndpoint:        "http://unused.invalid",
		ExplicitChainID:    &chainID,
		RelayerURL:         "https://relayer.example.com",
		KMSVerifierAddress: "0xnot-an-address",
	})

	var cfgErr *types.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestCreateLiveSessionMissingRelayer(t *testing.T) {
	chainID := uint64(8009)
	_, err := Create(context.Background(), &FactoryConfig{
		RPCEndpoint:        "http://unused.invalid",
		ExplicitChainID:    &chainID,
		KMSVerifierAddress: testKMS,
	})

	var cfgErr *types.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestCreateDecryptEIP712(t *testing.T) {
	server := newSimulatorServer(t)
	defer server.Close()

	sess, err := Create(context.Background(), &FactoryConfig{
		RPCEndpoint:       server.URL,
		SimulatedNetworks: map[uint64]string{31337: server.URL},
	})
	require.NoError(t, err)

	kp, err := sess.GenerateKeypair()
	require.NoError(t, err)

	td := sess.CreateDecryptEIP712(kp.PublicKey, []string{testACL}, 1700000000, 10)
	assert.Equal(t, "UserDecryptRequestVerification", td.PrimaryType)
	assert.Equal(t, "Decryption", td.Domain.Name)
	assert.Equal(t, common.HexToAddress(testKMS).Hex(), td.Domain.VerifyingContract)
}
