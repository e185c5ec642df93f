package pipeline

import (
	"regexp"
	"strings"
)

// 切块策略
const (
	StrategyWindow    = "window"
	StrategyParagraph = "paragraph"
)

// 默认切块参数
const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 300
)

// Chunker 将规范化后的文本切分为有序、可重叠的文本块。
// 空文本或只含空白的文本返回零个块。
type Chunker interface {
	Split(text string) []string
}

// NewChunker 根据策略名创建切块器，未知策略使用段落切块。
func NewChunker(strategy string, size, overlap int) Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if strategy == StrategyWindow {
		return &WindowChunker{Size: size, Overlap: overlap}
	}
	return &ParagraphChunker{Size: size, Overlap: overlap}
}

// WindowChunker 按固定窗口切块：第 i 块覆盖 text[i*(C-O) : i*(C-O)+C]，按 rune 计数。
type WindowChunker struct {
	Size    int
	Overlap int
}

// Split 实现 Chunker。
func (w *WindowChunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if w.Size <= w.Overlap {
		// 重叠无效时退化为不重叠的切分
		return simpleSplit(text, w.Size)
	}

	var chunks []string
	runes := []rune(text)

	step := w.Size - w.Overlap
	for i := 0; i < len(runes); i += step {
		end := i + w.Size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func simpleSplit(text string, chunkSize int) []string {
	var chunks []string
	runes := []rune(text)
	if len(runes) == 0 || chunkSize <= 0 {
		return nil
	}
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

var sentenceBoundary = regexp.MustCompile(`[.!?]+`)

// ParagraphChunker 以空行分段并累积段落，超过 Size 时输出当前块，
// 新块以上一块末尾 Overlap 个字符开头。单个段落过长时按句子切分，
// 单个句子仍过长时截断为 Size 个字符。输出的每个块都不超过 Size 个字符。
type ParagraphChunker struct {
	Size    int
	Overlap int
}

// Split 实现 Chunker。
func (p *ParagraphChunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []string
	var cur []rune
	emit := func(r []rune) {
		if s := strings.TrimSpace(string(r)); s != "" {
			chunks = append(chunks, s)
		}
	}

	for _, para := range strings.Split(text, "\n\n") {
		if para = strings.TrimSpace(para); para == "" {
			continue
		}
		pr := []rune(para)
		if len(cur)+1+len(pr) <= p.Size {
			cur = appendWithSpace(cur, pr)
			continue
		}

		seedOnly := false
		if len(cur) > 0 {
			emit(cur)
			seed := tail(cur, p.Overlap)
			if len(seed)+1+len(pr) <= p.Size {
				cur = appendWithSpace(seed, pr)
				continue
			}
			// 段落本身放不下，带着重叠部分进入按句切分
			cur = append([]rune(nil), seed...)
			seedOnly = len(cur) > 0
		}

		for _, sentence := range sentenceBoundary.Split(para, -1) {
			sentence = strings.TrimSpace(sentence)
			if sentence == "" {
				continue
			}
			sr := []rune(sentence)
			if len(cur)+1+len(sr) <= p.Size {
				cur = appendWithSpace(cur, sr)
				seedOnly = false
				continue
			}
			// 只有重叠部分时不单独成块
			if len(cur) > 0 && !seedOnly {
				emit(cur)
			}
			cur = nil
			seedOnly = false
			if len(sr) > p.Size {
				emit(sr[:p.Size])
				continue
			}
			cur = append(cur, sr...)
		}
	}
	emit(cur)
	return chunks
}

// appendWithSpace 返回 buf + " " + add 的新切片。
func appendWithSpace(buf, add []rune) []rune {
	out := make([]rune, 0, len(buf)+1+len(add))
	out = append(out, buf...)
	out = append(out, ' ')
	return append(out, add...)
}

func tail(r []rune, n int) []rune {
	if n <= 0 {
		return nil
	}
	if len(r) <= n {
		return r
	}
	return r[len(r)-n:]
}
