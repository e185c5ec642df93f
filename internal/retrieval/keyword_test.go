package retrieval

import (
	"context"
	"testing"

	"pdf-chat-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recipeChunks = []string{"apple pie recipe", "banana bread recipe", "car repair guide"}

func TestKeywordIndex_TiedScoresKeepChunkOrder(t *testing.T) {
	idx := NewKeywordIndex(recipeChunks, 0, 0)

	hits := idx.Search("recipe", 3)
	require.Len(t, hits, 2)
	assert.Equal(t, model.ScoredChunk{Index: 0, Content: "apple pie recipe", Score: 1.5}, hits[0])
	assert.Equal(t, model.ScoredChunk{Index: 1, Content: "banana bread recipe", Score: 1.5}, hits[1])
}

func TestKeywordIndex_NoMatch(t *testing.T) {
	idx := NewKeywordIndex(recipeChunks, 0, 0)
	assert.Empty(t, idx.Search("xyz123", 3))
	assert.Empty(t, idx.Search("", 3))
	assert.Empty(t, idx.Search("?? !!", 3))
}

func TestKeywordIndex_SubstringOnlyMatch(t *testing.T) {
	idx := NewKeywordIndex(recipeChunks, 0, 0)

	// "car" 太短不进入倒排索引，只得到子串分
	hits := idx.Search("car", 3)
	require.Len(t, hits, 1)
	assert.Equal(t, 2, hits[0].Index)
	assert.Equal(t, 0.5, hits[0].Score)
}

func TestKeywordIndex_QueryWordsDeduplicated(t *testing.T) {
	idx := NewKeywordIndex(recipeChunks, 0, 0)
	assert.Equal(t, []string{"recipe", "apple"}, idx.QueryWords("Recipe RECIPE apple recipe"))

	hits := idx.Search("recipe recipe apple", 3)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].Index)
	assert.Equal(t, 3.0, hits[0].Score)
	assert.Equal(t, 1.5, hits[1].Score)
}

func TestKeywordIndex_PostingsDeduplicatedAndStopWordsSkipped(t *testing.T) {
	idx := NewKeywordIndex([]string{"Recipe recipe RECIPE", "that recipe with this"}, 0, 0)
	assert.Equal(t, []int{0, 1}, idx.Postings("recipe"))
	assert.Empty(t, idx.Postings("that"))
	assert.Empty(t, idx.Postings("with"))
	assert.Equal(t, 1, idx.Len())
}

func TestKeywordIndex_TopN(t *testing.T) {
	chunks := []string{"alpha beta", "alpha", "alpha beta gamma", "delta"}
	idx := NewKeywordIndex(chunks, 0, 0)

	hits := idx.Search("alpha beta gamma", 2)
	require.Len(t, hits, 2)
	assert.Equal(t, 2, hits[0].Index)
	assert.Equal(t, 4.5, hits[0].Score)
	assert.Equal(t, 0, hits[1].Index)
	assert.Equal(t, 3.0, hits[1].Score)

	assert.Len(t, idx.Search("alpha", 0), DefaultKeywordTopN)
}

func TestKeywordRetriever(t *testing.T) {
	r := NewKeywordRetriever(recipeChunks, 0, 0)
	assert.Equal(t, model.ModeKeyword, r.Kind())
	assert.Equal(t, recipeChunks, r.Chunks())

	hits, err := r.Retrieve(context.Background(), "guide", 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "car repair guide", hits[0].Content)

	assert.Same(t, r, KeywordFallback(r))
}
