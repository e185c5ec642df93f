package pdf

import (
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// PageError 表示某一页文本提取失败，Page 从 1 开始。
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("pdf: page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// PageTexts 使用 MuPDF 按顺序返回每一页的原始文本。任何一页失败都会中止整个文档。
func PageTexts(data []byte) ([]string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	defer doc.Close()

	n := doc.NumPage()
	pages := make([]string, 0, n)
	for i := 0; i < n; i++ {
		text, err := doc.Text(i)
		if err != nil {
			return nil, &PageError{Page: i + 1, Err: err}
		}
		pages = append(pages, text)
	}
	return pages, nil
}
