package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aichat/backend-go/internal/errors"
)

func TestValidateStruct(t *testing.T) {
	require.NoError(t, ValidateStruct(CreateKnowledgeBaseRequest{Title: "测试知识库"}))

	err := ValidateStruct(CreateKnowledgeBaseRequest{})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "Title")
	assert.Contains(t, err.Error(), "required")

	err = ValidateStruct(CreateKnowledgeBaseRequest{Title: "t", SourceKind: "ftp"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oneof")
}

func TestClampMaxTokens(t *testing.T) {
	assert.Equal(t, 1, ClampMaxTokens(0, 32768))
	assert.Equal(t, 1, ClampMaxTokens(-5, 32768))
	assert.Equal(t, 3500, ClampMaxTokens(3500, 32768))
	assert.Equal(t, 32768, ClampMaxTokens(50000, 32768))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 4, EstimateTokens("十个汉字的一段文本。"))
	assert.Equal(t, 2, EstimateTokens("hello"))
}
