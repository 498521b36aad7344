package knowledge

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"unicode/utf16"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder 定义文本向量化接口
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Ready() bool
}

// NoopEmbedder 默认占位实现
type NoopEmbedder struct{}

func (n *NoopEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding provider not configured")
}

func (n *NoopEmbedder) Dimensions() int {
	return 0
}

func (n *NoopEmbedder) Ready() bool {
	return false
}

// HashingEmbedder 确定性的词频哈希向量生成器
//
// 不依赖任何外部服务：小写分词统计词频，每个词经哈希映射到3个维度
// 上累加，最后做L2归一化。相同文本永远得到相同向量，空白文本得到零向量。
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder 创建哈希向量生成器
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &HashingEmbedder{dimensions: dimensions}
}

func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float64, e.dimensions)
	if strings.TrimSpace(text) == "" {
		return toFloat32(vec), nil
	}

	// 计算词频
	freq := make(map[string]int)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		freq[word]++
	}

	// 将词频映射到向量的不同位置
	for word, count := range freq {
		base := hashWord(word)
		for i := int32(0); i < 3; i++ {
			idx := (base + i*31) % int32(e.dimensions)
			if idx < 0 {
				idx = -idx
			}
			vec[idx] += float64(count)
		}
	}

	// L2归一化
	var sumSquares float64
	for _, v := range vec {
		sumSquares += v * v
	}
	if sumSquares > 0 {
		norm := math.Sqrt(sumSquares)
		for i := range vec {
			vec[i] /= norm
		}
	}

	return toFloat32(vec), nil
}

func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *HashingEmbedder) Ready() bool {
	return true
}

// hashWord 对UTF-16编码单元做31倍数滚动哈希，带符号32位溢出
func hashWord(word string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(word)) {
		h = 31*h + int32(u)
	}
	return h
}

func toFloat32(vec []float64) []float32 {
	result := make([]float32, len(vec))
	for i, v := range vec {
		result[i] = float32(v)
	}
	return result
}

var embeddingDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedder 使用OpenAI Embedding API
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	limiter    sync.Mutex
}

// NewOpenAIEmbedder 创建OpenAI嵌入向量生成器
func NewOpenAIEmbedder(apiKey, baseURL, model string) Embedder {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &NoopEmbedder{}
	}
	if model == "" {
		model = "text-embedding-3-small"
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	client := openai.NewClientWithConfig(cfg)
	dims, ok := embeddingDimensions[model]
	if !ok {
		dims = 1536
	}

	return &OpenAIEmbedder{
		client:     client,
		model:      model,
		dimensions: dims,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text is empty")
	}
	if e.client == nil {
		return nil, errors.New("openai client not initialized")
	}

	e.limiter.Lock()
	defer e.limiter.Unlock()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response empty")
	}

	embedding := resp.Data[0].Embedding
	result := make([]float32, len(embedding))
	copy(result, embedding)
	return result, nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *OpenAIEmbedder) Ready() bool {
	return e.client != nil
}

// NewEmbedderFromConfig 按配置选择向量化实现，默认哈希方案
func NewEmbedderFromConfig(provider, apiKey, baseURL, model string, dimensions int) Embedder {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai":
		return NewOpenAIEmbedder(apiKey, baseURL, model)
	default:
		return NewHashingEmbedder(dimensions)
	}
}
