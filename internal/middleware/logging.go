// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"pdf-chat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// 日志中请求体与响应体最多记录的字节数
const maxLoggedBody = 2048

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 实现了 io.Writer 接口，将响应写入 gin.ResponseWriter，并把前 maxLoggedBody 字节留在 buffer 中
func (w bodyLogWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody - w.body.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		w.body.Write(b[:room])
	}
	return w.ResponseWriter.Write(b)
}

// capture 判断请求体是否适合写入日志：文件上传与 PDF 正文只记录大小。
func capture(contentType string) bool {
	ct := strings.ToLower(contentType)
	return !strings.HasPrefix(ct, "multipart/") && !strings.Contains(ct, "pdf") && !strings.HasPrefix(ct, "application/octet-stream")
}

func truncate(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "...(truncated)"
	}
	return string(b)
}

// RequestLogger 是一个 Gin 中间件，用于记录请求和响应日志。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 记录请求开始时间
		startTime := time.Now()

		// 仅对文本请求读取并重新缓存请求体
		requestBody := "<omitted>"
		if c.Request.Body != nil && capture(c.ContentType()) {
			raw, _ := io.ReadAll(io.LimitReader(c.Request.Body, maxLoggedBody+1))
			// 将读取的部分与剩余部分重新拼接，以便后续处理函数可以正常读取
			c.Request.Body = readCloser{io.MultiReader(bytes.NewReader(raw), c.Request.Body), c.Request.Body}
			requestBody = truncate(raw)
		}

		// websocket 升级需要原始的 ResponseWriter
		upgrade := strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
		var blw *bodyLogWriter
		if !upgrade {
			blw = &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
			c.Writer = blw
		}

		// 处理请求
		c.Next()

		responseBody := ""
		if blw != nil {
			responseBody = blw.body.String()
		}

		// 记录完整的请求和响应信息
		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestSize", c.Request.ContentLength,
			"requestBody", requestBody,
			"responseBody", responseBody,
		)
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}
