package services

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/aichat/backend-go/internal/errors"
)

var validate = validator.New()

// ValidateStruct 按结构体标签校验请求，失败时返回验证错误
func ValidateStruct(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.NewValidationError(err.Error())
	}

	var msgs []string
	for _, fieldErr := range validationErrors {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed on '%s'", fieldErr.Field(), fieldErr.Tag()))
	}
	return apperrors.NewValidationError(strings.Join(msgs, "; "))
}

// ClampMaxTokens 限制最大输出token数，避免上游返回400
func ClampMaxTokens(tokens, upperBound int) int {
	if tokens < 1 {
		return 1
	}
	if tokens > upperBound {
		return upperBound
	}
	return tokens
}
