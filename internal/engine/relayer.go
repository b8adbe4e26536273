package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kashguard/go-fhe-client/internal/types"
)

// RelayerEngine 线上网络的引擎实现。
// 加密输入证明、授权解密和公共解密都由部署的 relayer 网关代理，
// 真实的同态运算发生在协处理器一侧。
type RelayerEngine struct {
	baseURL    string
	chainID    uint64
	material   *KeyMaterial
	httpClient *http.Client
}

// RelayerConfig relayer 引擎配置
type RelayerConfig struct {
	BaseURL  string
	ChainID  uint64
	Material *KeyMaterial
}

// NewRelayerEngine 创建 relayer 引擎
func NewRelayerEngine(cfg *RelayerConfig) (*RelayerEngine, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, errors.New("relayer base URL is required")
	}

	return &RelayerEngine{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		chainID:  cfg.ChainID,
		material: cfg.Material,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// ChainID 返回链 ID
func (e *RelayerEngine) ChainID() uint64 {
	return e.chainID
}

// KeyMaterial 返回网络公钥材料
func (e *RelayerEngine) KeyMaterial() *KeyMaterial {
	return e.material
}

// relayerValue relayer 返回的单个明文值
type relayerValue struct {
	Type  uint8  `json:"type"`
	Value string `json:"value"`
}

// FetchKeyMaterial 从 relayer 拉取网络公钥材料
func FetchKeyMaterial(ctx context.Context, relayerURL string, chainID uint64, kmsVerifier common.Address) (*KeyMaterial, error) {
	url := fmt.Sprintf("%s/v1/keys?chainId=%d&kmsVerifier=%s", strings.TrimRight(relayerURL, "/"), chainID, kmsVerifier.Hex())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch key material")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read key material response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("key material fetch failed: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		PublicKey    string `json:"publicKey"`
		PublicParams string `json:"publicParams"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal key material")
	}

	publicKey, err := hexutil.Decode(payload.PublicKey)
	if err != nil {
		return nil, errors.Wrap(err, "malformed public key in key material")
	}
	publicParams, err := hexutil.Decode(payload.PublicParams)
	if err != nil {
		return nil, errors.Wrap(err, "malformed public params in key material")
	}

	return &KeyMaterial{PublicKey: publicKey, PublicParams: publicParams}, nil
}

// BatchEncrypt 通过 relayer 生成密文句柄和输入证明
func (e *RelayerEngine) BatchEncrypt(ctx context.Context, req *EncryptRequest) (*EncryptResult, error) {
	if req == nil || len(req.Values) == 0 {
		return nil, errors.New("encrypt request is empty")
	}

	values := make([]relayerValue, 0, len(req.Values))
	for _, v := range req.Values {
		values = append(values, relayerValue{
			Type:  uint8(v.Type),
			Value: v.Value.String(),
		})
	}

	payload := map[string]interface{}{
		"chainId":         e.chainID,
		"contractAddress": req.ContractAddress.Hex(),
		"userAddress":     req.UserAddress.Hex(),
		"values":          values,
	}

	var result struct {
		Handles    []string `json:"handles"`
		InputProof string   `json:"inputProof"`
	}
	if _, err := e.post(ctx, "/v1/input-proof", payload, &result); err != nil {
		return nil, err
	}

	proof, err := hexutil.Decode(result.InputProof)
	if err != nil {
		return nil, errors.Wrap(err, "malformed input proof from relayer")
	}

	return &EncryptResult{Handles: result.Handles, InputProof: proof}, nil
}

// UserDecrypt 通过 relayer 执行授权解密
func (e *RelayerEngine) UserDecrypt(ctx context.Context, req *UserDecryptRequest) (map[string]types.ClearValue, error) {
	if req == nil {
		return nil, errors.New("decrypt request is nil")
	}

	payload := map[string]interface{}{
		"chainId":             e.chainID,
		"handleContractPairs": req.Pairs,
		"userAddress":         req.UserAddress.Hex(),
		"publicKey":           hexutil.Encode(req.PublicKey),
		"signature":           hexutil.Encode(req.Signature),
		"contractAddresses":   req.ContractAddresses,
		"startTimestamp":      req.StartTimestamp,
		"durationDays":        req.DurationDays,
	}

	var result struct {
		Values map[string]relayerValue `json:"values"`
	}
	status, err := e.post(ctx, "/v1/user-decrypt", payload, &result)
	if err != nil {
		if status == http.StatusForbidden || status == http.StatusUnauthorized {
			return nil, errors.Wrap(ErrUnauthorized, err.Error())
		}
		return nil, err
	}

	return decodeRelayerValues(result.Values)
}

// PublicDecrypt 通过 relayer 执行公共解密
func (e *RelayerEngine) PublicDecrypt(ctx context.Context, handles []string) (map[string]types.ClearValue, error) {
	payload := map[string]interface{}{
		"chainId": e.chainID,
		"handles": handles,
	}

	var result struct {
		Values map[string]relayerValue `json:"values"`
	}
	status, err := e.post(ctx, "/v1/public-decrypt", payload, &result)
	if err != nil {
		if status == http.StatusForbidden {
			return nil, errors.Wrap(ErrHandleNotPublic, err.Error())
		}
		return nil, err
	}

	return decodeRelayerValues(result.Values)
}

// decodeRelayerValues 将 relayer 的值表转为 ClearValue 表
func decodeRelayerValues(values map[string]relayerValue) (map[string]types.ClearValue, error) {
	out := make(map[string]types.ClearValue, len(values))
	for handle, rv := range values {
		normalized, err := types.NormalizeHandle(handle)
		if err != nil {
			return nil, errors.Wrap(err, "malformed handle in relayer response")
		}

		value, ok := new(big.Int).SetString(rv.Value, 10)
		if !ok {
			return nil, errors.Errorf("malformed value %q in relayer response", rv.Value)
		}

		out[normalized] = types.NewClearValue(types.FheType(rv.Type), value)
	}
	return out, nil
}

// post 发送 JSON 请求并解析响应；返回 HTTP 状态码用于错误分类
func (e *RelayerEngine) post(ctx context.Context, path string, body interface{}, result interface{}) (int, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return 0, errors.Wrap(err, "failed to marshal request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return 0, errors.Wrap(err, "failed to create request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, errors.Errorf("relayer error: HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return resp.StatusCode, errors.Wrap(err, "failed to unmarshal response")
		}
	}

	return resp.StatusCode, nil
}
