package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"pdf-chat-go/internal/config"
	"pdf-chat-go/pkg/tika"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makePDF 生成每页一行文本的 PDF，空字符串表示空白页。
func makePDF(t *testing.T, pages ...string) []byte {
	t.Helper()
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetFont("Helvetica", "", 12)
	for _, text := range pages {
		doc.AddPage()
		if text != "" {
			doc.Cell(0, 10, text)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

func TestNormalizePages(t *testing.T) {
	tests := []struct {
		name  string
		pages []string
		want  string
	}{
		{"collapses whitespace", []string{"  Hello \t  world\n\nagain  "}, "Hello world again"},
		{"drops empty pages", []string{"one", "  \n ", "", "two"}, "one\n\ntwo"},
		{"all empty", []string{" ", "\n"}, ""},
		{"no pages", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePages(tt.pages))
		})
	}
}

func TestFitzExtractor_Extract(t *testing.T) {
	data := makePDF(t, "Hello World", "", "Third page text")

	doc, err := FitzExtractor{}.Extract(context.Background(), data, "sample.pdf")
	require.NoError(t, err)
	assert.Equal(t, "sample.pdf", doc.Name)
	assert.Equal(t, 3, doc.PageCount)
	assert.Equal(t, "Hello World\n\nThird page text", doc.Text)
}

func TestFitzExtractor_InvalidPDF(t *testing.T) {
	_, err := FitzExtractor{}.Extract(context.Background(), []byte("definitely not a pdf"), "bad.pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExtraction))

	var extErr *ExtractionError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, 0, extErr.Page)
}

func TestFitzExtractor_NoText(t *testing.T) {
	_, err := FitzExtractor{}.Extract(context.Background(), makePDF(t, "", ""), "blank.pdf")
	assert.ErrorIs(t, err, ErrNoText)
}

func TestTikaExtractor_SplitsOnFormFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tika", r.URL.Path)
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = io.WriteString(w, "Page   one\ntext\f\f  Page two  \f")
	}))
	defer srv.Close()

	ext := NewExtractor(BackendTika, tika.NewClient(config.TikaConfig{ServerURL: srv.URL}))
	require.IsType(t, &TikaExtractor{}, ext)

	doc, err := ext.Extract(context.Background(), makePDF(t, "a", "b"), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Page one text\n\nPage two", doc.Text)
	assert.Equal(t, 2, doc.PageCount)
}

func TestTikaExtractor_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ext := NewExtractor(BackendTika, tika.NewClient(config.TikaConfig{ServerURL: srv.URL}))
	_, err := ext.Extract(context.Background(), makePDF(t, "a"), "doc.pdf")
	assert.ErrorIs(t, err, ErrExtraction)
}

func TestNewExtractor_TikaWithoutClientFallsBackToFitz(t *testing.T) {
	assert.IsType(t, &FitzExtractor{}, NewExtractor(BackendTika, nil))
	assert.IsType(t, &FitzExtractor{}, NewExtractor("", nil))
}

func TestProcessor_Process(t *testing.T) {
	p := NewProcessor(FitzExtractor{}, &WindowChunker{Size: 5, Overlap: 0})
	res, err := p.Process(context.Background(), "doc.pdf", makePDF(t, "Hello World"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello", " Worl", "d"}, res.Chunks)
	assert.Equal(t, 1, res.Document.PageCount)

	_, err = p.Process(context.Background(), "bad.pdf", []byte("%PDF-1.4 garbage"))
	assert.ErrorIs(t, err, ErrExtraction)
}
