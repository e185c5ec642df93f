package synth

import (
	"fmt"
	"regexp"
	"strings"

	"pdf-chat-go/internal/model"
)

// Shape 是根据疑问词判断出的回答形式。
type Shape string

const (
	ShapeExplanation Shape = "explanation"
	ShapeList        Shape = "list"
	ShapeSpecific    Shape = "specific"
	ShapeGeneral     Shape = "general"
)

// 按优先级排列，命中第一个即返回。
var shapeKeywords = []struct {
	shape Shape
	words []string
}{
	{ShapeExplanation, []string{"apa", "what", "apakah", "bagaimana", "how"}},
	{ShapeList, []string{"daftar", "list", "sebutkan", "berapa", "jumlah"}},
	{ShapeSpecific, []string{"dimana", "where", "kapan", "when"}},
}

// ClassifyQuery 以小写查询的子串匹配判断回答形式。
func ClassifyQuery(query string) Shape {
	q := strings.ToLower(query)
	for _, group := range shapeKeywords {
		for _, w := range group.words {
			if strings.Contains(q, w) {
				return group.shape
			}
		}
	}
	return ShapeGeneral
}

// Level 是回答的可信度等级。
type Level string

const (
	LevelHigh   Level = "tinggi"
	LevelMedium Level = "sedang"
	LevelLow    Level = "rendah"
)

// Confidence 根据检索得分之和给出可信度：≥3 为高，≥1.5 为中，否则为低。
func Confidence(total float64) Level {
	switch {
	case total >= 3:
		return LevelHigh
	case total >= 1.5:
		return LevelMedium
	default:
		return LevelLow
	}
}

const (
	listItemsPerChunk = 5
	listExcerptLen    = 300
	explanationChunks = 2
	explanationMaxLen = 800
	generalExcerptLen = 400
	listHeader        = "Berdasarkan dokumen, berikut informasi yang saya temukan:\n\n"
	explanationHeader = "Berdasarkan dokumen, berikut penjelasannya:\n\n"
	generalHeader     = "Berdasarkan dokumen yang saya analisis:\n\n"
	confidenceLineFmt = "\n*Tingkat kepercayaan jawaban: %s*"
)

var numberedItem = regexp.MustCompile(`^\d+\.`)

// Fallback 在没有 LLM 时直接用命中的文本块拼出回答。没有命中时返回 NotFoundMessage。
// 正文超过 maxChars（大于 0 时）会先经 GuardLength 截断，再追加可信度说明。
func Fallback(query string, chunks []model.ScoredChunk, maxChars int) string {
	if len(chunks) == 0 {
		return NotFoundMessage
	}

	var body string
	switch ClassifyQuery(query) {
	case ShapeList:
		body = listBody(chunks)
	case ShapeExplanation:
		body = explanationBody(chunks)
	default:
		body = generalBody(chunks)
	}
	if maxChars > 0 {
		body = GuardLength(body, maxChars)
	}
	return body + fmt.Sprintf(confidenceLineFmt, Confidence(model.TotalScore(chunks)))
}

func listBody(chunks []model.ScoredChunk) string {
	var b strings.Builder
	b.WriteString(listHeader)
	for i, c := range chunks {
		items := listItems(c.Content)
		if len(items) > 0 {
			fmt.Fprintf(&b, "**Bagian %d:**\n", i+1)
			for j, item := range items {
				if j == listItemsPerChunk {
					break
				}
				fmt.Fprintf(&b, "• %s\n", item)
			}
			b.WriteString("\n")
			continue
		}
		fmt.Fprintf(&b, "**Informasi %d:** %s\n\n", i+1, excerpt(c.Content, listExcerptLen))
	}
	return b.String()
}

func listItems(content string) []string {
	var items []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "-") || strings.HasPrefix(line, "•") || numberedItem.MatchString(line) {
			items = append(items, line)
		}
	}
	return items
}

func explanationBody(chunks []model.ScoredChunk) string {
	var combined strings.Builder
	for i, c := range chunks {
		if i == explanationChunks {
			break
		}
		combined.WriteString(c.Content)
		combined.WriteString(" ")
	}
	return explanationHeader + excerpt(strings.TrimSpace(combined.String()), explanationMaxLen)
}

func generalBody(chunks []model.ScoredChunk) string {
	var b strings.Builder
	b.WriteString(generalHeader)
	for i, c := range chunks {
		fmt.Fprintf(&b, "**Informasi %d:**\n%s\n\n", i+1, excerpt(c.Content, generalExcerptLen))
	}
	return b.String()
}

// excerpt 截取前 n 个字符，超长时追加省略号。
func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
