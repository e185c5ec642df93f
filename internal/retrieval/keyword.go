package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"pdf-chat-go/internal/model"
)

// 关键词索引的默认参数
const (
	DefaultIndexMinWordLen = 4
	DefaultQueryMinWordLen = 3
	DefaultKeywordTopN     = 3
)

// stopWords 是建立索引时忽略的常见英文词。
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`that this with have will from they been were said each which their time
		would there could other more very what know just first get over think also its our out many then
		them these so some her make like into him has two go no way my than call who now find long down
		day did come made may part`) {
		stopWords[w] = struct{}{}
	}
}

// IsStopWord 判断 w（小写）是否为停用词。
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

func wordPattern(minLen int) *regexp.Regexp {
	if minLen < 1 {
		minLen = 1
	}
	return regexp.MustCompile(fmt.Sprintf(`\b[a-zA-Z]{%d,}\b`, minLen))
}

// KeywordIndex 是“词 → 包含该词的块下标”的倒排索引，构建后只读。
type KeywordIndex struct {
	chunks   []string
	lowered  []string
	postings map[string][]int
	queryRe  *regexp.Regexp
}

// NewKeywordIndex 对每个块的小写文本提取长度不小于 indexMinLen 的字母词（排除停用词）建立索引。
// 每个词的块下标升序且在同一块内去重。
func NewKeywordIndex(chunks []string, indexMinLen, queryMinLen int) *KeywordIndex {
	if indexMinLen <= 0 {
		indexMinLen = DefaultIndexMinWordLen
	}
	if queryMinLen <= 0 {
		queryMinLen = DefaultQueryMinWordLen
	}
	indexRe := wordPattern(indexMinLen)

	idx := &KeywordIndex{
		chunks:   chunks,
		lowered:  make([]string, len(chunks)),
		postings: make(map[string][]int),
		queryRe:  wordPattern(queryMinLen),
	}
	for i, chunk := range chunks {
		lower := strings.ToLower(chunk)
		idx.lowered[i] = lower
		for _, word := range indexRe.FindAllString(lower, -1) {
			if IsStopWord(word) {
				continue
			}
			list := idx.postings[word]
			if n := len(list); n > 0 && list[n-1] == i {
				continue
			}
			idx.postings[word] = append(list, i)
		}
	}
	return idx
}

// Postings 返回包含 word 的块下标。
func (idx *KeywordIndex) Postings(word string) []int {
	return idx.postings[strings.ToLower(word)]
}

// Len 返回索引中的词数。
func (idx *KeywordIndex) Len() int {
	return len(idx.postings)
}

// QueryWords 提取查询中的字母词（小写，按首次出现去重）。
func (idx *KeywordIndex) QueryWords(query string) []string {
	seen := make(map[string]struct{})
	var words []string
	for _, w := range idx.queryRe.FindAllString(strings.ToLower(query), -1) {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	return words
}

// Search 为每个块计分：查询词命中倒排索引时每个词加 1.0；
// 查询词作为子串出现在块中时每个词再加 0.5。按得分降序稳定排序（同分保持块顺序），
// 返回得分大于 0 的前 n 个。没有任何命中时返回空结果。
func (idx *KeywordIndex) Search(query string, n int) []model.ScoredChunk {
	if n <= 0 {
		n = DefaultKeywordTopN
	}
	words := idx.QueryWords(query)
	if len(words) == 0 || len(idx.chunks) == 0 {
		return nil
	}

	scores := make([]float64, len(idx.chunks))
	for _, w := range words {
		for _, i := range idx.postings[w] {
			scores[i] += 1.0
		}
	}
	for i, lower := range idx.lowered {
		direct := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				direct++
			}
		}
		scores[i] += 0.5 * float64(direct)
	}

	var hits []model.ScoredChunk
	for i, s := range scores {
		if s > 0 {
			hits = append(hits, model.ScoredChunk{Index: i, Content: idx.chunks[i], Score: s})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if len(hits) > n {
		hits = hits[:n]
	}
	return hits
}

// KeywordRetriever 是关键词回退模式下的检索器。
type KeywordRetriever struct {
	index *KeywordIndex
}

// NewKeywordRetriever 在 chunks 上建立关键词索引。
func NewKeywordRetriever(chunks []string, indexMinLen, queryMinLen int) *KeywordRetriever {
	return &KeywordRetriever{index: NewKeywordIndex(chunks, indexMinLen, queryMinLen)}
}

// Kind 实现 Retriever。
func (k *KeywordRetriever) Kind() model.Mode { return model.ModeKeyword }

// Chunks 实现 Retriever。
func (k *KeywordRetriever) Chunks() []string { return k.index.chunks }

// Index 返回底层倒排索引。
func (k *KeywordRetriever) Index() *KeywordIndex { return k.index }

// Retrieve 实现 Retriever，纯内存计算，不会失败。
func (k *KeywordRetriever) Retrieve(_ context.Context, query string, n int) ([]model.ScoredChunk, error) {
	return k.index.Search(query, n), nil
}
