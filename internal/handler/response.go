// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"errors"
	"net/http"

	"pdf-chat-go/internal/pipeline"
	"pdf-chat-go/internal/repository"
	"pdf-chat-go/internal/retrieval"
	"pdf-chat-go/internal/service"
	"pdf-chat-go/internal/session"
	"pdf-chat-go/internal/synth"
	"pdf-chat-go/pkg/llm"
	"pdf-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// 面向用户的错误文案，与回答使用同一种语言。
const (
	msgEmptyQuestion   = "Pertanyaan tidak boleh kosong."
	msgBadRequest      = "Permintaan tidak valid."
	msgNotPDF          = "Hanya file PDF yang diperbolehkan."
	msgFileTooLarge    = "Ukuran file melebihi batas yang diizinkan."
	msgEmptyFile       = "File yang diunggah kosong."
	msgExtraction      = "Gagal membaca file PDF. Pastikan file tidak rusak atau terenkripsi."
	msgNoText          = "Tidak ada teks yang dapat diekstrak dari dokumen ini."
	msgDocNotFound     = "Dokumen tidak ditemukan."
	msgNoArchive       = "File asli dokumen tidak tersedia untuk diproses ulang."
	msgTimeout         = "Permintaan melebihi batas waktu. Silakan coba lagi."
	msgInternal        = "Terjadi kesalahan pada server. Silakan coba lagi."
	msgSuccess         = "success"
	msgProcessed       = "Dokumen berhasil diproses."
	msgProcessedDegrad = "Dokumen berhasil diproses dalam mode pencarian kata kunci."
	msgQueued          = "Dokumen dijadwalkan untuk diproses ulang."
	msgDeleted         = "Dokumen berhasil dihapus."
)

// errorStatus 把领域错误映射为 HTTP 状态码与可读文案，原始错误只写日志。
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrEmptyQuestion):
		return http.StatusBadRequest, msgEmptyQuestion
	case errors.Is(err, service.ErrEmptyFile):
		return http.StatusBadRequest, msgEmptyFile
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrIndexLost):
		return http.StatusNotFound, synth.SessionLostMessage
	case errors.Is(err, repository.ErrDocumentNotFound):
		return http.StatusNotFound, msgDocNotFound
	case errors.Is(err, service.ErrNoArchive):
		return http.StatusConflict, msgNoArchive
	case errors.Is(err, pipeline.ErrNoText), errors.Is(err, retrieval.ErrEmptyIndex):
		return http.StatusUnprocessableEntity, msgNoText
	case errors.Is(err, pipeline.ErrExtraction):
		return http.StatusUnprocessableEntity, msgExtraction
	case errors.Is(err, llm.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, synth.UnavailableMessage
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, msgTimeout
	}
	return http.StatusInternalServerError, msgInternal
}

func writeError(c *gin.Context, op string, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s 失败: %v", op, err)
	} else {
		log.Warnf("%s 失败: %v", op, err)
	}
	c.JSON(status, gin.H{"code": status, "message": msg, "data": nil})
}

func writeOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": message, "data": data})
}
