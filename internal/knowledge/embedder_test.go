package knowledge

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashingEmbedderZeroVectorForBlankText(t *testing.T) {
	e := NewHashingEmbedder(1536)

	for _, text := range []string{"", "   ", "\n\t"} {
		vec, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		require.Len(t, vec, 1536)
		for _, v := range vec {
			assert.Zero(t, v)
		}
	}
}

func TestHashingEmbedderDeterministic(t *testing.T) {
	e := NewHashingEmbedder(1536)

	first, err := e.Embed(context.Background(), "向量检索 deterministic embedding test")
	require.NoError(t, err)
	second, err := e.Embed(context.Background(), "向量检索 deterministic embedding test")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestHashingEmbedderNormalized(t *testing.T) {
	e := NewHashingEmbedder(1536)

	vec, err := e.Embed(context.Background(), "hello world hello again")
	require.NoError(t, err)

	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSquares), 1e-3)
}

func TestHashingEmbedderCaseInsensitive(t *testing.T) {
	e := NewHashingEmbedder(1536)

	lower, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	upper, err := e.Embed(context.Background(), "HELLO World")
	require.NoError(t, err)

	assert.Equal(t, lower, upper)
}

func TestHashingEmbedderDistinguishesTexts(t *testing.T) {
	e := NewHashingEmbedder(1536)

	a, err := e.Embed(context.Background(), "postgres vector search")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "kafka message broker")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestHashingEmbedderDimensions(t *testing.T) {
	assert.Equal(t, 1536, NewHashingEmbedder(0).Dimensions())
	assert.Equal(t, 256, NewHashingEmbedder(256).Dimensions())
	assert.True(t, NewHashingEmbedder(1536).Ready())

	vec, err := NewHashingEmbedder(256).Embed(context.Background(), "small space")
	require.NoError(t, err)
	assert.Len(t, vec, 256)
}

func TestNoopEmbedder(t *testing.T) {
	e := &NoopEmbedder{}

	assert.False(t, e.Ready())
	assert.Zero(t, e.Dimensions())
	_, err := e.Embed(context.Background(), "anything")
	assert.Error(t, err)
}

func TestNewEmbedderFromConfig(t *testing.T) {
	e := NewEmbedderFromConfig("hash", "", "", "", 1536)
	assert.IsType(t, &HashingEmbedder{}, e)
	assert.True(t, e.Ready())

	// 未配置密钥时OpenAI退化为占位实现
	e = NewEmbedderFromConfig("openai", "", "", "", 1536)
	assert.False(t, e.Ready())

	e = NewEmbedderFromConfig("openai", "sk-test", "", "text-embedding-3-small", 0)
	assert.IsType(t, &OpenAIEmbedder{}, e)
	assert.Equal(t, 1536, e.Dimensions())
}
