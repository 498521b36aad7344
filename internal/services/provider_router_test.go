package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aichat/backend-go/internal/config"
)

func routerForTest() *ProviderRouter {
	return NewProviderRouter(config.ChatConfig{
		Providers: []config.ProviderEntry{
			{Name: "dashscope", Match: []string{"qwen"}, BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/", APIKey: "k1", Path: "/v1/chat/completions"},
			{Name: "zhipu", Match: []string{"glm", "zhipu"}, BaseURL: "https://open.bigmodel.cn/api/paas", APIKey: "k2", Path: "/v4/chat/completions"},
			{Name: "deepseek", BaseURL: "https://api.deepseek.com", APIKey: "k3", Path: "/v1/chat/completions"},
		},
		DefaultProvider: "deepseek",
	})
}

func TestResolveByModelSubstring(t *testing.T) {
	r := routerForTest()

	assert.Equal(t, "dashscope", r.Resolve("qwen-turbo").Name)
	assert.Equal(t, "zhipu", r.Resolve("glm-4").Name)
	assert.Equal(t, "zhipu", r.Resolve("zhipu-chat").Name)
	assert.Equal(t, "deepseek", r.Resolve("deepseek-chat").Name)
	assert.Equal(t, "deepseek", r.Resolve("gpt-4o").Name)
}

func TestResolveCaseInsensitive(t *testing.T) {
	r := routerForTest()
	assert.Equal(t, "dashscope", r.Resolve("Qwen-Max").Name)
	assert.Equal(t, "zhipu", r.Resolve("GLM-4-Plus").Name)
}

func TestResolveTrimsBaseURL(t *testing.T) {
	got := routerForTest().Resolve("qwen-plus")
	assert.Equal(t, "https://dashscope.aliyuncs.com/compatible-mode", got.BaseURL)
	assert.Equal(t, "/v1/chat/completions", got.Path)
	assert.Equal(t, "k1", got.APIKey)
}

func TestResolveFallbackWithoutDefault(t *testing.T) {
	r := NewProviderRouter(config.ChatConfig{
		Providers: []config.ProviderEntry{
			{Name: "only", BaseURL: "https://example.com"},
		},
	})
	assert.Equal(t, "only", r.Resolve("anything").Name)

	empty := NewProviderRouter(config.ChatConfig{})
	assert.Equal(t, ProviderEndpoint{}, empty.Resolve("anything"))
}
