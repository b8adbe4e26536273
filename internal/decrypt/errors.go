package decrypt

import "fmt"

// ErrorCode 解密错误分类码
type ErrorCode string

const (
	// CodeBackendRejected 后端拒绝了解密调用
	CodeBackendRejected ErrorCode = "BACKEND_REJECTED"

	// CodeResultMissing 调用名义上成功但结果中缺少请求的句柄
	CodeResultMissing ErrorCode = "RESULT_MISSING"

	// CodeNotPublic 句柄未被合约标记为可公开解密
	CodeNotPublic ErrorCode = "NOT_PUBLICLY_DECRYPTABLE"
)

// DecryptError 带分类码的解密错误
type DecryptError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *DecryptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DecryptError) Unwrap() error {
	return e.Err
}

// NewDecryptError 创建解密错误
func NewDecryptError(code ErrorCode, err error, format string, args ...interface{}) *DecryptError {
	return &DecryptError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}
