package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Capabilities 描述启动时探测到的外部能力，用于健康检查输出。
type Capabilities struct {
	Embedding      bool   `json:"embedding"`
	LLM            bool   `json:"llm"`
	VectorBackend  string `json:"vector_backend"`
	SessionBackend string `json:"session_backend"`
	Extractor      string `json:"extractor"`
	Archive        bool   `json:"archive"`
	AsyncTasks     bool   `json:"async_tasks"`
}

// HealthHandler 处理健康检查请求。
type HealthHandler struct {
	caps Capabilities
}

// NewHealthHandler 创建一个新的 HealthHandler。
func NewHealthHandler(caps Capabilities) *HealthHandler {
	return &HealthHandler{caps: caps}
}

// Health 返回服务状态与能力开关。
func (h *HealthHandler) Health(c *gin.Context) {
	writeOK(c, msgSuccess, gin.H{"status": "ok", "capabilities": h.caps})
}

// Ping 用于存活探测。
func (h *HealthHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "pong", "data": nil})
}
