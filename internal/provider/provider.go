package provider

import (
	"context"
	"encoding/json"
)

// Provider JSON-RPC 能力接口。
// 只声明本子系统实际用到的最小能力；钱包注入的 provider、
// ethclient 包装或纯 RPC endpoint 都可以适配成它。
type Provider interface {
	// Request 执行一次 JSON-RPC 调用，返回原始 result
	Request(ctx context.Context, method string, params []interface{}) (json.RawMessage, error)
}
