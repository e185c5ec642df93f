package synth

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxAnswerChars 是回答长度上限的默认值。
const DefaultMaxAnswerChars = 1200

const guardSentences = 3

var sentenceEnd = regexp.MustCompile(`[.!?]+`)

// GuardLength 在回答超过 max 个字符时只保留前三个句子并以句号结尾。
// 前三句仍超长时按字符截断。
func GuardLength(answer string, max int) string {
	if max <= 0 || utf8.RuneCountInString(answer) <= max {
		return answer
	}

	var kept []string
	for _, s := range sentenceEnd.Split(answer, -1) {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		kept = append(kept, s)
		if len(kept) == guardSentences {
			break
		}
	}
	out := strings.Join(kept, ". ")
	if r := []rune(out); len(r) > max-1 {
		out = strings.TrimSpace(string(r[:max-1]))
	}
	return out + "."
}
