package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"pdf-chat-go/internal/model"
	"pdf-chat-go/pkg/pdf"
	"pdf-chat-go/pkg/tika"
)

// 提取后端
const (
	BackendFitz = "fitz"
	BackendTika = "tika"
)

var (
	// ErrExtraction 表示 PDF 无法读取或某一页提取失败，对本次上传是致命错误。
	ErrExtraction = errors.New("extraction failed")
	// ErrNoText 表示 PDF 可读但没有任何可提取的文本。
	ErrNoText = errors.New("document contains no extractable text")
)

// ExtractionError 携带失败页码（0 表示文档级失败）。
type ExtractionError struct {
	Page int
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("%s at page %d: %v", ErrExtraction, e.Page, e.Err)
	}
	return fmt.Sprintf("%s: %v", ErrExtraction, e.Err)
}

// Is 使 errors.Is(err, ErrExtraction) 成立。
func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor 从 PDF 字节中提取规范化文本。
type Extractor interface {
	Extract(ctx context.Context, data []byte, fileName string) (*model.ExtractedDocument, error)
}

// NewExtractor 根据后端名创建提取器。tika 后端需要非空的 client。
func NewExtractor(backend string, tikaClient *tika.Client) Extractor {
	if backend == BackendTika && tikaClient != nil {
		return &TikaExtractor{client: tikaClient}
	}
	return &FitzExtractor{}
}

// NormalizePages 将每页内部的连续空白折叠为单个空格，丢弃空页，页与页之间以空行连接。
func NormalizePages(pages []string) string {
	kept := make([]string, 0, len(pages))
	for _, page := range pages {
		if cleaned := strings.Join(strings.Fields(page), " "); cleaned != "" {
			kept = append(kept, cleaned)
		}
	}
	return strings.Join(kept, "\n\n")
}

// FitzExtractor 使用 pdfcpu 校验结构，再用 MuPDF 逐页提取文本。
type FitzExtractor struct{}

// Extract 实现 Extractor。
func (FitzExtractor) Extract(ctx context.Context, data []byte, fileName string) (*model.ExtractedDocument, error) {
	info, err := pdf.Inspect(data)
	if err != nil {
		return nil, &ExtractionError{Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pages, err := pdf.PageTexts(data)
	if err != nil {
		var pageErr *pdf.PageError
		if errors.As(err, &pageErr) {
			return nil, &ExtractionError{Page: pageErr.Page, Err: pageErr.Err}
		}
		return nil, &ExtractionError{Err: err}
	}

	return buildDocument(fileName, info.PageCount, pages)
}

// TikaExtractor 调用远程 Tika 服务提取文本，以换页符切分页面；
// 没有换页符时按空行切分。
type TikaExtractor struct {
	client *tika.Client
}

// Extract 实现 Extractor。
func (t *TikaExtractor) Extract(ctx context.Context, data []byte, fileName string) (*model.ExtractedDocument, error) {
	info, err := pdf.Inspect(data)
	if err != nil {
		return nil, &ExtractionError{Err: err}
	}

	raw, err := t.client.ExtractText(ctx, bytes.NewReader(data), fileName)
	if err != nil {
		return nil, &ExtractionError{Err: err}
	}

	var pages []string
	if strings.Contains(raw, "\f") {
		pages = strings.Split(raw, "\f")
	} else {
		pages = strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n\n")
	}
	return buildDocument(fileName, info.PageCount, pages)
}

func buildDocument(fileName string, pageCount int, pages []string) (*model.ExtractedDocument, error) {
	text := NormalizePages(pages)
	if text == "" {
		return nil, ErrNoText
	}
	if pageCount == 0 {
		pageCount = len(pages)
	}
	return &model.ExtractedDocument{Name: fileName, PageCount: pageCount, Text: text}, nil
}
