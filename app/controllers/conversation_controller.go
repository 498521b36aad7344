package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aichat/backend-go/internal/services"
)

// ConversationController 会话控制器
//
// 注入的服务必须是导出字段：beego每次请求都会复制注册实例，
// 只有可设置的导出字段能带到请求副本上。
type ConversationController struct {
	BaseController
	ConversationService *services.ConversationService
}

// NewConversationController 创建会话控制器
func NewConversationController(conversationService *services.ConversationService) *ConversationController {
	return &ConversationController{ConversationService: conversationService}
}

// Create 创建会话
func (c *ConversationController) Create() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}

	var req struct {
		Title string `json:"title"`
	}
	if len(c.Ctx.Input.RequestBody) > 0 {
		if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
			c.JSONError(http.StatusBadRequest, "请求参数错误")
			return
		}
	}

	conv, err := c.ConversationService.CreateConversation(c.Ctx.Request.Context(), userID, req.Title)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(conv)
}

// List 获取会话列表，按最近活跃排序
func (c *ConversationController) List() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.GetString("page", "1"))
	limit, _ := strconv.Atoi(c.GetString("limit", "20"))

	conversations, total, err := c.ConversationService.ListConversations(c.Ctx.Request.Context(), userID, page, limit)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"conversations": conversations,
		"total":         total,
		"page":          page,
		"limit":         limit,
	})
}

// Messages 获取会话消息，检索来源已解析
func (c *ConversationController) Messages() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}
	conversationID := c.GetString(":id")
	if conversationID == "" {
		c.JSONError(http.StatusBadRequest, "缺少必要参数")
		return
	}

	messages, err := c.ConversationService.ListMessages(c.Ctx.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"messages": messages,
		"total":    len(messages),
	})
}

// Delete 删除会话及其全部消息
func (c *ConversationController) Delete() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}
	conversationID := c.GetString(":id")
	if conversationID == "" {
		c.JSONError(http.StatusBadRequest, "缺少必要参数")
		return
	}

	if err := c.ConversationService.DeleteConversation(c.Ctx.Request.Context(), conversationID, userID); err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"message": "会话已删除",
	})
}
