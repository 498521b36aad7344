package controllers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aichat/backend-go/internal/services"
)

// ChatController 流式聊天控制器
//
// 注入的服务必须是导出字段：beego每次请求都会复制注册实例，
// 只有可设置的导出字段能带到请求副本上。
type ChatController struct {
	BaseController
	ChatService *services.ChatStreamService
}

// NewChatController 创建聊天控制器
func NewChatController(chatService *services.ChatStreamService) *ChatController {
	return &ChatController{ChatService: chatService}
}

// Stream 流式聊天，SSE输出
//
// 增量内容走匿名data帧，完整回复走final事件，错误走error事件，
// 最后以[DONE]哨兵收尾。
func (c *ChatController) Stream() {
	userID, ok := c.getAuthenticatedUserID()
	if !ok {
		return
	}

	var req services.ChatStreamRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "请求参数错误")
		return
	}

	ctx := c.Ctx.Request.Context()
	events, err := c.ChatService.StreamChat(ctx, userID, req)
	if err != nil {
		c.JSONAppError(err)
		return
	}

	w := c.Ctx.ResponseWriter
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := interface{}(w).(http.Flusher)
	flush := func() {
		if canFlush {
			flusher.Flush()
		}
	}

	for event := range events {
		switch event.Type {
		case services.EventDelta:
			writeSSEData(w, "", event.Content)
		case services.EventFinal:
			writeSSEData(w, "final", event.Content)
		case services.EventError:
			writeSSEData(w, "error", event.ErrorPayload())
		case services.EventDone:
			fmt.Fprint(w, "data: [DONE]\n\n")
		}
		flush()

		if ctx.Err() != nil {
			return
		}
	}
}

// writeSSEData 写一个SSE帧，多行内容拆成多个data行
func writeSSEData(w io.Writer, event, data string) {
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}
