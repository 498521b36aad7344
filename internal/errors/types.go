package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误
	ErrCodeInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrCodeBadRequest     ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"

	// 验证错误
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodeUnknownStrategy  ErrorCode = "UNKNOWN_SPLIT_STRATEGY"

	// 业务逻辑错误
	ErrCodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeAccessDenied     ErrorCode = "ACCESS_DENIED"
	ErrCodeOperationFailed  ErrorCode = "OPERATION_FAILED"

	// 数据库错误
	ErrCodeDatabaseError     ErrorCode = "DATABASE_ERROR"
	ErrCodePersistenceFailed ErrorCode = "PERSISTENCE_FAILED"

	// 上游AI服务错误
	ErrCodeUpstreamHTTP    ErrorCode = "UPSTREAM_HTTP_ERROR"
	ErrCodeUpstreamNetwork ErrorCode = "UPSTREAM_NETWORK_ERROR"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeBusiness
	ErrorTypeValidation
	ErrorTypeExternal
)

// AppError 应用错误结构体
type AppError struct {
	Code     ErrorCode   `json:"code"`
	Message  string      `json:"message"`
	Type     ErrorType   `json:"type"`
	HTTPCode int         `json:"-"`
	Details  interface{} `json:"details,omitempty"`
	Cause    error       `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加错误详情
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// NewSystemError 创建系统错误
func NewSystemError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusInternalServerError,
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeValidationFailed,
		Message:  message,
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewUnknownStrategyError 创建未知切分策略错误
func NewUnknownStrategyError(strategy string) *AppError {
	return &AppError{
		Code:     ErrCodeUnknownStrategy,
		Message:  fmt.Sprintf("unknown split strategy: %s", strategy),
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewNotFoundError 创建资源未找到错误
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:     ErrCodeResourceNotFound,
		Message:  fmt.Sprintf("%s not found", resource),
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusNotFound,
	}
}

// NewAccessDeniedError 创建访问拒绝错误（知识库/会话不属于当前用户）
func NewAccessDeniedError(resource string) *AppError {
	return &AppError{
		Code:     ErrCodeAccessDenied,
		Message:  fmt.Sprintf("%s not owned by caller", resource),
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusForbidden,
	}
}

// NewUpstreamHTTPError 创建上游HTTP错误（非2xx响应，不重试）
func NewUpstreamHTTPError(status int, body string) *AppError {
	return &AppError{
		Code:     ErrCodeUpstreamHTTP,
		Message:  fmt.Sprintf("upstream returned HTTP %d", status),
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusBadGateway,
		Details:  map[string]interface{}{"status": status, "body": body},
	}
}

// NewUpstreamNetworkError 创建上游网络错误（连接/超时，可在首字节前重试）
func NewUpstreamNetworkError(cause error) *AppError {
	return &AppError{
		Code:     ErrCodeUpstreamNetwork,
		Message:  "upstream connection failed",
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusBadGateway,
		Cause:    cause,
	}
}

// IsAccessDenied 判断是否为访问拒绝错误
func IsAccessDenied(err error) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Code == ErrCodeAccessDenied
}

// IsValidation 判断是否为验证错误
func IsValidation(err error) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == ErrorTypeValidation
}
