package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"pdf-chat-go/internal/model"
	"pdf-chat-go/internal/pipeline"
	"pdf-chat-go/pkg/llm"
	"pdf-chat-go/pkg/tasks"
)

// stubEmbedder 按几个关键词生成向量。
type stubEmbedder struct {
	mu      sync.Mutex
	failing bool
}

var stubAxes = []string{"apple", "banana", "car"}

func (e *stubEmbedder) setFailing(v bool) {
	e.mu.Lock()
	e.failing = v
	e.mu.Unlock()
}

func (e *stubEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(stubAxes)+1)
	for i, w := range stubAxes {
		if strings.Contains(lower, w) {
			v[i] = 1
		}
	}
	v[len(stubAxes)] = 0.1
	return v
}

func (e *stubEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failing {
		return nil, errors.New("embedding down")
	}
	return e.vector(text), nil
}

func (e *stubEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failing {
		return nil, errors.New("embedding down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

// stubLLM 记录收到的消息并返回固定回答。
type stubLLM struct {
	mu     sync.Mutex
	answer string
	err    error
	calls  int
	last   []llm.Message
}

func (l *stubLLM) Complete(_ context.Context, messages []llm.Message, _ *llm.GenerationParams) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.last = messages
	return l.answer, l.err
}

func (l *stubLLM) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// textExtractor 把上传内容当作纯文本，以 \f 分页。
type textExtractor struct{}

func (textExtractor) Extract(_ context.Context, data []byte, fileName string) (*model.ExtractedDocument, error) {
	pages := strings.Split(string(data), "\f")
	text := pipeline.NormalizePages(pages)
	if text == "" {
		return nil, pipeline.ErrNoText
	}
	return &model.ExtractedDocument{Name: fileName, PageCount: len(pages), Text: text}, nil
}

type recordingProducer struct {
	mu    sync.Mutex
	tasks []tasks.ReprocessTask
	err   error
}

func (p *recordingProducer) ProduceReprocessTask(_ context.Context, task tasks.ReprocessTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, task)
	return nil
}
