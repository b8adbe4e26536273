package types

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrAborted 表示操作被调用方主动取消。
// 调用方必须能把它与真实故障区分开（例如 UI 不应将其显示为错误）。
var ErrAborted = errors.New("operation aborted")

// IsAborted 检查错误链中是否包含取消信号
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}

// ConfigError 配置错误（缺少 provider、地址格式非法等），不可重试
type ConfigError struct {
	Message string
}

func NewConfigError(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Message
}

// ValidationError 请求参数校验错误，在任何网络交互之前抛出
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}
