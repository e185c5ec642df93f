package synth

import (
	"regexp"
	"strings"
)

var (
	// 含 page_content 时才认为文本里有对象转储
	dumpContext = regexp.MustCompile(`(?i)page_content`)

	documentWrapper = regexp.MustCompile(`(?i)Document\(\s*(page_content[^()]*)\)`)
	pageContentSQ   = regexp.MustCompile(`(?i)['"]?page_content['"]?\s*[:=]\s*'([^']*)'`)
	pageContentDQ   = regexp.MustCompile(`(?i)['"]?page_content['"]?\s*[:=]\s*"([^"]*)"`)
	pageContentBare = regexp.MustCompile(`(?i)['"]?page_content['"]?\s*[:=]\s*`)

	// metadata 块：花括号内是带引号的键；在转储上下文中任意花括号都算
	metadataKeyed = regexp.MustCompile(`(?i)['"]?metadata['"]?\s*[:=]\s*\{\s*['"][^{}]*\}`)
	metadataAny   = regexp.MustCompile(`(?i)['"]?metadata['"]?\s*[:=]\s*\{[^{}]*\}`)

	// source 键值对：带引号的键、带引号的值，或者值是文件名
	sourceQuotedKey   = regexp.MustCompile(`(?i)['"]source['"]\s*[:=]\s*('[^']*'|"[^"]*"|[^\s,}]+)`)
	sourceQuotedValue = regexp.MustCompile(`(?i)\bsource\s*[:=]\s*('[^']*'|"[^"]*")`)
	sourceFileValue   = regexp.MustCompile(`(?i)\bsource\s*[:=]\s*[^\s,'"]+\.(?:pdf|txt|docx?|md)\b`)

	horizontalSpace = regexp.MustCompile(`[ \t]+`)
	blankLines      = regexp.MustCompile(`\n\s*\n+`)
	danglingComma   = regexp.MustCompile(`\s*,\s*(,\s*)+`)
)

// CleanChunkText 去掉文本中类似内部数据结构转储的片段（Document(page_content=...) 包裹、
// page_content 前缀、metadata 块、source 键值对），保留正文。
// 没有可去除的片段时原样返回；对同一输入多次调用结果不变。
func CleanChunkText(s string) string {
	inDump := dumpContext.MatchString(s)
	out, changed := s, false
	// 删除可能把前后两段拼成新的标记，重复到没有变化为止
	for {
		next := scrubOnce(out, inDump)
		if next == out {
			break
		}
		out, changed = tidy(next), true
	}
	if !changed {
		return s
	}
	return out
}

func scrubOnce(s string, inDump bool) string {
	out := documentWrapper.ReplaceAllString(s, "$1")
	out = pageContentSQ.ReplaceAllString(out, "$1")
	out = pageContentDQ.ReplaceAllString(out, "$1")
	out = pageContentBare.ReplaceAllString(out, "")
	out = metadataKeyed.ReplaceAllString(out, "")
	if inDump {
		out = metadataAny.ReplaceAllString(out, "")
	}
	out = sourceQuotedKey.ReplaceAllString(out, "")
	out = sourceQuotedValue.ReplaceAllString(out, "")
	return sourceFileValue.ReplaceAllString(out, "")
}

func tidy(s string) string {
	out := danglingComma.ReplaceAllString(s, ", ")
	out = horizontalSpace.ReplaceAllString(out, " ")
	out = blankLines.ReplaceAllString(out, "\n\n")
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.Trim(line, " ,;")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
