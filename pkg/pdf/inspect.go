// Package pdf 封装 PDF 的结构校验（pdfcpu）与逐页文本提取（go-fitz / MuPDF）。
package pdf

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrInvalid 表示输入不是可读的 PDF。
var ErrInvalid = errors.New("pdf: invalid or corrupted document")

func init() {
	// 不读写用户目录下的 pdfcpu 配置文件
	model.ConfigPath = "disable"
}

// Info 是 PDF 的结构信息。
type Info struct {
	PageCount int
	Encrypted bool
}

// Inspect 读取 PDF 的交叉引用表并返回页数。使用宽松校验模式，
// 只拒绝结构上无法解析的文件。
func Inspect(data []byte) (Info, error) {
	if len(data) == 0 || !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF")) {
		return Info{}, fmt.Errorf("%w: missing %%PDF header", ErrInvalid)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if ctx.PageCount == 0 {
		if err := ctx.EnsurePageCount(); err != nil {
			return Info{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	return Info{PageCount: ctx.PageCount, Encrypted: ctx.Encrypt != nil}, nil
}
