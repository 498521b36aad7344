package controllers

import (
	"time"

	"github.com/aichat/backend-go/internal/database"
)

// RootController 服务根路径
type RootController struct {
	BaseController
}

// Index 服务信息
func (c *RootController) Index() {
	c.JSONSuccess(map[string]interface{}{
		"service": "chat-backend",
		"time":    time.Now().Format(time.RFC3339),
	})
}

// HealthController 健康检查
type HealthController struct {
	BaseController
}

// Health 健康检查，带数据库连通性
func (c *HealthController) Health() {
	status := "ok"
	dbStatus := "ok"
	if database.DB != nil {
		if sqlDB, err := database.DB.DB(); err != nil || sqlDB.Ping() != nil {
			dbStatus = "unavailable"
			status = "degraded"
		}
	} else {
		dbStatus = "uninitialized"
		status = "degraded"
	}

	c.JSONSuccess(map[string]interface{}{
		"status":   status,
		"database": dbStatus,
	})
}
