package synth

import (
	"fmt"
	"strings"

	"pdf-chat-go/internal/model"
	"pdf-chat-go/pkg/llm"
)

// 提示词默认值
const (
	DefaultRules = "Anda adalah asisten yang menjawab pertanyaan tentang dokumen PDF yang diunggah pengguna.\n" +
		"Jawab hanya berdasarkan kutipan di antara penanda referensi. Jika jawabannya tidak ada di kutipan, katakan bahwa informasi tersebut tidak ditemukan dalam dokumen.\n" +
		"Jawab dalam bahasa yang sama dengan pertanyaan, ringkas dan jelas."
	DefaultRefStart     = "<<REF>>"
	DefaultRefEnd       = "<<END>>"
	DefaultNoResultText = "(tidak ada kutipan yang relevan untuk pertanyaan ini)"
)

// 单个片段写入上下文的最大字符数，与默认切块大小一致。
const maxSnippetLen = 1500

// PromptConfig 配置系统提示与上下文包裹格式，空字段使用默认值。
type PromptConfig struct {
	Rules        string
	RefStart     string
	RefEnd       string
	NoResultText string
}

func (p PromptConfig) withDefaults() PromptConfig {
	if p.Rules == "" {
		p.Rules = DefaultRules
	}
	if p.RefStart == "" {
		p.RefStart = DefaultRefStart
	}
	if p.RefEnd == "" {
		p.RefEnd = DefaultRefEnd
	}
	if p.NoResultText == "" {
		p.NoResultText = DefaultNoResultText
	}
	return p
}

// BuildContextText 将检索结果编号拼接为上下文。
func BuildContextText(chunks []model.ScoredChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	for i, c := range chunks {
		snippet := c.Content
		if r := []rune(snippet); len(r) > maxSnippetLen {
			snippet = string(r[:maxSnippetLen]) + "…"
		}
		fmt.Fprintf(&b, "[%d] %s\n", i+1, snippet)
	}
	return b.String()
}

// BuildSystemMessage 组装规则与上下文。
func BuildSystemMessage(cfg PromptConfig, contextText string) string {
	cfg = cfg.withDefaults()
	var sys strings.Builder
	sys.WriteString(cfg.Rules)
	sys.WriteString("\n\n")
	sys.WriteString(cfg.RefStart)
	sys.WriteString("\n")
	if contextText != "" {
		sys.WriteString(contextText)
	} else {
		sys.WriteString(cfg.NoResultText)
		sys.WriteString("\n")
	}
	sys.WriteString(cfg.RefEnd)
	return sys.String()
}

// BuildMessages 依次放入系统消息、历史对话和当前问题。
func BuildMessages(cfg PromptConfig, chunks []model.ScoredChunk, history []model.ChatMessage, question string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: BuildSystemMessage(cfg, BuildContextText(chunks))})
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: model.RoleUser, Content: question})
	return msgs
}
