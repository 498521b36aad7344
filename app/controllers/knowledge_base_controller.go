package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aichat/backend-go/internal/services"
)

// KnowledgeBaseController 知识库控制器
//
// 注入的服务必须是导出字段：beego每次请求都会复制注册实例，
// 只有可设置的导出字段能带到请求副本上。
type KnowledgeBaseController struct {
	BaseController
	VectorService *services.VectorService
}

// NewKnowledgeBaseController 创建知识库控制器
func NewKnowledgeBaseController(vectorService *services.VectorService) *KnowledgeBaseController {
	return &KnowledgeBaseController{VectorService: vectorService}
}

// List 获取知识库列表
func (c *KnowledgeBaseController) List() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.GetString("page", "1"))
	limit, _ := strconv.Atoi(c.GetString("limit", "20"))
	search := c.GetString("search")

	bases, total, err := c.VectorService.ListKnowledgeBases(c.Ctx.Request.Context(), userID, page, limit, search)
	if err != nil {
		c.JSONAppError(err)
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"knowledge_bases": bases,
		"total":           total,
		"page":            page,
		"limit":           limit,
	})
}

// Get 获取知识库详情
func (c *KnowledgeBaseController) Get() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}
	kbID, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	kb, err := c.VectorService.GetKnowledgeBase(c.Ctx.Request.Context(), kbID, userID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(kb)
}

// Create 创建知识库
func (c *KnowledgeBaseController) Create() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}

	var req services.CreateKnowledgeBaseRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "请求参数错误")
		return
	}

	kb, err := c.VectorService.CreateKnowledgeBase(c.Ctx.Request.Context(), userID, req)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(kb)
}

// Update 更新知识库
func (c *KnowledgeBaseController) Update() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}
	kbID, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	var updates map[string]interface{}
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &updates); err != nil {
		c.JSONError(http.StatusBadRequest, "请求参数错误")
		return
	}

	kb, err := c.VectorService.UpdateKnowledgeBase(c.Ctx.Request.Context(), kbID, userID, updates)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(kb)
}

// Delete 删除知识库
func (c *KnowledgeBaseController) Delete() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}
	kbID, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	if err := c.VectorService.DeleteKnowledgeBase(c.Ctx.Request.Context(), kbID, userID); err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"message": "知识库已删除",
	})
}

// GetDocuments 获取知识库文档列表
func (c *KnowledgeBaseController) GetDocuments() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}
	kbID, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	docs, err := c.VectorService.GetDocuments(c.Ctx.Request.Context(), kbID, userID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"documents": docs,
		"total":     len(docs),
	})
}

// AddDocuments 切分文本并写入知识库
func (c *KnowledgeBaseController) AddDocuments() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}
	kbID, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	var req services.AddDocumentsRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "请求参数错误")
		return
	}

	count, err := c.VectorService.AddDocumentsFromText(c.Ctx.Request.Context(), kbID, userID, req)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"chunks": count,
	})
}

// ReplaceDocuments 以新内容整体替换知识库文档
func (c *KnowledgeBaseController) ReplaceDocuments() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}
	kbID, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	var req struct {
		Contents []string `json:"contents"`
	}
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "请求参数错误")
		return
	}

	count, err := c.VectorService.ReplaceDocuments(c.Ctx.Request.Context(), kbID, userID, req.Contents)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"chunks": count,
	})
}

// PreviewSplit 预览切分结果，不落库
func (c *KnowledgeBaseController) PreviewSplit() {
	if _, ok := c.getAuthenticatedUserID(); !ok {
		return
	}

	var req services.PreviewSplitRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "请求参数错误")
		return
	}

	chunks, err := c.VectorService.PreviewSplit(req)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"chunks": chunks,
		"total":  len(chunks),
	})
}

// Search 在知识库中检索相似文档
func (c *KnowledgeBaseController) Search() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}
	kbID, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}

	query := c.GetString("q")
	if query == "" {
		c.JSONError(http.StatusBadRequest, "缺少查询参数")
		return
	}
	topK, _ := strconv.Atoi(c.GetString("top_k", "3"))

	matches, err := c.VectorService.Search(c.Ctx.Request.Context(), kbID, userID, query, topK)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"matches": matches,
		"total":   len(matches),
	})
}
