package router

import (
	"github.com/beego/beego/v2/server/web"

	"github.com/aichat/backend-go/app/bootstrap"
	"github.com/aichat/backend-go/app/controllers"
)

// Init registers all routes. Must be called after bootstrap.
func Init(app *bootstrap.App) {
	web.Router("/", &controllers.RootController{}, "get:Index")
	web.Router("/health", &controllers.HealthController{}, "get:Health")

	// Prometheus指标
	web.Handler("/metrics", app.MetricsService.Handler())

	// 知识库路由
	kbController := controllers.NewKnowledgeBaseController(app.VectorService)
	web.Router("/api/knowledge", kbController, "get:List;post:Create")
	// 注意：具体路由必须在参数路由之前，否则/preview会被:id匹配
	web.Router("/api/knowledge/preview", kbController, "post:PreviewSplit")
	web.Router("/api/knowledge/:id", kbController, "get:Get;put:Update;delete:Delete")
	web.Router("/api/knowledge/:id/documents", kbController, "get:GetDocuments;post:AddDocuments;put:ReplaceDocuments")
	web.Router("/api/knowledge/:id/search", kbController, "get:Search")

	// 会话路由
	conversationController := controllers.NewConversationController(app.ConversationService)
	web.Router("/api/conversations", conversationController, "get:List;post:Create")
	web.Router("/api/conversations/:id", conversationController, "delete:Delete")
	web.Router("/api/conversations/:id/messages", conversationController, "get:Messages")

	// 流式聊天路由
	chatController := controllers.NewChatController(app.ChatStreamService)
	web.Router("/api/chat/stream", chatController, "post:Stream")
}
