// Package pipeline 定义了文档处理的核心流程：文本提取与切块。
package pipeline

import (
	"context"
	"fmt"
	"unicode/utf8"

	"pdf-chat-go/internal/model"
	"pdf-chat-go/pkg/log"
)

// Processor 封装了提取与切块两个阶段。两者都是无状态的，可被并发调用。
type Processor struct {
	extractor Extractor
	chunker   Chunker
}

// Result 是一次处理的输出。
type Result struct {
	Document *model.ExtractedDocument
	Chunks   []string
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(extractor Extractor, chunker Chunker) *Processor {
	return &Processor{extractor: extractor, chunker: chunker}
}

// Process 提取 PDF 文本并切块。提取失败直接返回，不做部分文档降级。
func (p *Processor) Process(ctx context.Context, fileName string, data []byte) (*Result, error) {
	log.Infof("[Processor] 开始处理文件, FileName: %s, Size: %d字节", fileName, len(data))

	log.Info("[Processor] 步骤1: 提取文本内容")
	doc, err := p.extractor.Extract(ctx, data, fileName)
	if err != nil {
		log.Errorf("[Processor] 提取文本失败, FileName: %s, Error: %v", fileName, err)
		return nil, fmt.Errorf("提取文本失败: %w", err)
	}
	log.Infof("[Processor] 步骤1: 文本提取成功, 页数: %d, 内容长度: %d 字符", doc.PageCount, utf8.RuneCountInString(doc.Text))

	log.Info("[Processor] 步骤2: 进行文本分块")
	chunks := p.chunker.Split(doc.Text)
	log.Infof("[Processor] 步骤2: 文本分块完成, 共生成 %d 个分块", len(chunks))

	return &Result{Document: doc, Chunks: chunks}, nil
}
