package handler

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"pdf-chat-go/internal/model"
	"pdf-chat-go/internal/service"
	"pdf-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService     service.DocumentService
	maxUploadBytes int64
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。maxUploadBytes <= 0 表示不限制大小。
func NewDocumentHandler(docService service.DocumentService, maxUploadBytes int64) *DocumentHandler {
	return &DocumentHandler{
		docService:     docService,
		maxUploadBytes: maxUploadBytes,
	}
}

// Upload 接收 multipart 表单中的 file 字段，处理文档并返回新的会话 ID。
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": msgBadRequest, "data": nil})
		return
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": msgNotPDF, "data": nil})
		return
	}
	if h.maxUploadBytes > 0 && fileHeader.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"code": http.StatusRequestEntityTooLarge, "message": msgFileTooLarge, "data": nil})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		writeError(c, "打开上传文件", err)
		return
	}
	defer file.Close()

	var reader io.Reader = file
	if h.maxUploadBytes > 0 {
		reader = io.LimitReader(file, h.maxUploadBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		writeError(c, "读取上传文件", err)
		return
	}
	if h.maxUploadBytes > 0 && int64(len(data)) > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"code": http.StatusRequestEntityTooLarge, "message": msgFileTooLarge, "data": nil})
		return
	}

	fileName := filepath.Base(fileHeader.Filename)
	log.Infof("收到上传请求: fileName=%s, size=%d", fileName, len(data))
	res, err := h.docService.ProcessDocument(c.Request.Context(), fileName, data)
	if err != nil {
		writeError(c, "处理文档", err)
		return
	}

	message := msgProcessed
	if res.Outcome == model.OutcomeDegraded {
		message = msgProcessedDegrad
	}
	writeOK(c, message, res)
}

// List 返回所有已处理的文档。
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.docService.ListDocuments(c.Request.Context())
	if err != nil {
		writeError(c, "获取文档列表", err)
		return
	}
	writeOK(c, msgSuccess, docs)
}

// Delete 删除文档及其会话。
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}
	if err := h.docService.DeleteDocument(c.Request.Context(), id); err != nil {
		writeError(c, "删除文档", err)
		return
	}
	writeOK(c, msgDeleted, nil)
}

// Process 从归档文件重新处理文档。?async=true 且配置了 Kafka 时只投递任务并返回 202。
func (h *DocumentHandler) Process(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		queued, err := h.docService.EnqueueReprocess(c.Request.Context(), id)
		if err != nil {
			writeError(c, "投递重处理任务", err)
			return
		}
		if queued {
			c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": msgQueued, "data": gin.H{"document_id": id}})
			return
		}
		// 未配置 Kafka，退回同步处理
	}

	res, err := h.docService.Reprocess(c.Request.Context(), id)
	if err != nil {
		writeError(c, "重新处理文档", err)
		return
	}
	message := msgProcessed
	if res.Outcome == model.OutcomeDegraded {
		message = msgProcessedDegrad
	}
	writeOK(c, message, res)
}

func documentID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": msgBadRequest, "data": nil})
		return 0, false
	}
	return uint(id), true
}
