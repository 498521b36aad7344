package services

import (
	"strings"

	"github.com/aichat/backend-go/internal/config"
)

// ProviderEndpoint 解析出的上游提供商端点
type ProviderEndpoint struct {
	Name    string
	BaseURL string
	APIKey  string
	Path    string
}

// ProviderRouter 按模型名路由到上游提供商
//
// 路由表有序：模型名（小写后）包含条目的任一匹配子串即命中，
// 都不命中时回落到默认提供商。
type ProviderRouter struct {
	entries         []config.ProviderEntry
	defaultProvider string
}

// NewProviderRouter 创建提供商路由器
func NewProviderRouter(cfg config.ChatConfig) *ProviderRouter {
	return &ProviderRouter{
		entries:         cfg.Providers,
		defaultProvider: cfg.DefaultProvider,
	}
}

// Resolve 根据模型名解析提供商端点
func (r *ProviderRouter) Resolve(model string) ProviderEndpoint {
	m := strings.ToLower(model)

	for _, entry := range r.entries {
		for _, match := range entry.Match {
			if match != "" && strings.Contains(m, strings.ToLower(match)) {
				return toEndpoint(entry)
			}
		}
	}

	// 回落到默认提供商
	for _, entry := range r.entries {
		if entry.Name == r.defaultProvider {
			return toEndpoint(entry)
		}
	}
	if len(r.entries) > 0 {
		return toEndpoint(r.entries[len(r.entries)-1])
	}
	return ProviderEndpoint{}
}

func toEndpoint(entry config.ProviderEntry) ProviderEndpoint {
	return ProviderEndpoint{
		Name:    entry.Name,
		BaseURL: strings.TrimRight(entry.BaseURL, "/"),
		APIKey:  entry.APIKey,
		Path:    entry.Path,
	}
}
