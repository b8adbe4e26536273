package client

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
	"github.com/kashguard/go-fhe-client/internal/signer"
	"github.com/kashguard/go-fhe-client/internal/storage"
)

// newSimulatorServer 表现为兼容本地模拟节点的 httptest 服务器
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
				"aclAddress":           "0x50157CFfD6bBFA2DECe204a89ec419c23ef5755D",
				"kmsVerifierAddress":   "0x12B064FB845C1cc05e9493856a1D637a73e944bE",
				"inputVerifierAddress": "0x901F8942346f7AB3a01F6D7613119Bca447Bb030",
			}
		default:
			resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found"}
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

// TestSimulatedEndToEnd 完整闭环：初始化模拟会话、加密、授权解密、公共解密
func TestSimulatedEndToEnd(t *testing.T) {
	server := newSimulatorServer(t)
	defer server.Close()

	c := New(Config{
		RPCEndpoint:       server.URL,
		SimulatedNetworks: map[uint64]string{31337: server.URL},
		KeyStore:          storage.NewMemoryStore(),
		SignatureStore:    storage.NewMemoryStore(),
	})
	defer c.Dispose()

	require.NoError(t, c.Init(context.Background()))
	sess, err := c.Session()
	require.NoError(t, err)
	require.True(t, sess.IsSimulated())
	require.Equal(t, uint64(31337), sess.ChainID())

	sgn, err := signer.GenerateSigner()
	require.NoError(t, err)
	contract := common.HexToAddress("0x4444444444444444444444444444444444444444")

	// 1. 加密
	builder, err := c.CreateEncryptedInput(contract, sgn.Address())
	require.NoError(t, err)
	result, err := builder.Add32(5).AddBool(true).Finalize(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Handles, 2)
	require.NotEmpty(t, result.InputProof)

	// 2. 授权解密：往返得到原值
	value, err := c.DecryptSingle(context.Background(), result.Handles[0], contract.Hex(), sgn, nil)
	require.NoError(t, err)
	assert.Equal(t, "5", value.String())

	boolValue, err := c.DecryptSingle(context.Background(), result.Handles[1], contract.Hex(), sgn, nil)
	require.NoError(t, err)
	assert.True(t, boolValue.Bool())

	// 3. 公共解密：标记之后不需要任何签名器
	sim, ok := sess.Engine().(*engine.SimulatedEngine)
	require.True(t, ok)
	require.NoError(t, sim.MarkPublic(result.Handles[0]))

	public, err := c.PublicDecryptSingle(context.Background(), result.Handles[0])
	require.NoError(t, err)
	assert.Equal(t, "5", public.String())
}

// TestEndToEndAuthorizationCache 第二次解密复用缓存的授权签名
func TestEndToEndAuthorizationCache(t *testing.T) {
	server := newSimulatorServer(t)
	defer server.Close()

	sigStore := storage.NewMemoryStore()
	c := New(Config{
		RPCEndpoint:       server.URL,
		SimulatedNetworks: map[uint64]string{31337: server.URL},
		SignatureStore:    sigStore,
	})
	defer c.Dispose()

	require.NoError(t, c.Init(context.Background()))

	sgn, err := signer.GenerateSigner()
	require.NoError(t, err)
	contract := common.HexToAddress("0x4444444444444444444444444444444444444444")

	builder, err := c.CreateEncryptedInput(contract, sgn.Address())
	require.NoError(t, err)
	result, err := builder.Add64(1234).Finalize(context.Background())
	require.NoError(t, err)

	first, err := c.DecryptSingle(context.Background(), result.Handles[0], contract.Hex(), sgn, nil)
	require.NoError(t, err)
	second, err := c.DecryptSingle(context.Background(), result.Handles[0], contract.Hex(), sgn, nil)
	require.NoError(t, err)

	assert.Equal(t, first.String(), second.String())
	assert.Equal(t, "1234", second.String())
}
