package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// RPCClient Ethereum RPC 客户端
type RPCClient struct {
	endpoint string
	client   *http.Client
}

// NewRPCClient 创建 Ethereum RPC 客户端
func NewRPCClient(endpoint string) *RPCClient {
	return &RPCClient{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Endpoint 返回客户端指向的 RPC 地址
func (c *RPCClient) Endpoint() string {
	return c.endpoint
}

// RPCRequest RPC 请求
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

// RPCResponse RPC 响应
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// RPCError RPC 错误
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Request 执行 RPC 调用
func (c *RPCClient) Request(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	req := &RPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal RPC request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create HTTP request")
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute HTTP request")
	}
	defer resp.Body.Close()

	var rpcResp RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, errors.Wrap(err, "failed to decode RPC response")
	}

	if rpcResp.Error != nil {
		return nil, fmt.Errorf("RPC error: %s (code: %d)", rpcResp.Error.Message, rpcResp.Error.Code)
	}

	return rpcResp.Result, nil
}

// ChainID 查询链 ID
func ChainID(ctx context.Context, p Provider) (uint64, error) {
	result, err := p.Request(ctx, "eth_chainId", nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to call eth_chainId")
	}

	var chainIDHex string
	if err := json.Unmarshal(result, &chainIDHex); err != nil {
		return 0, errors.Wrap(err, "failed to unmarshal chain id")
	}

	chainID, err := parseHexQuantity(chainIDHex)
	if err != nil {
		return 0, errors.Wrap(err, "failed to parse chain id")
	}

	return chainID.Uint64(), nil
}

// parseHexQuantity 解析 0x 前缀的十六进制数量
func parseHexQuantity(s string) (*big.Int, error) {
	h := strings.TrimPrefix(strings.ToLower(s), "0x")
	if h == "" {
		return nil, errors.New("empty hex quantity")
	}

	value := new(big.Int)
	value, ok := value.SetString(h, 16)
	if !ok {
		return nil, errors.Errorf("failed to parse hex quantity %q", s)
	}

	return value, nil
}
