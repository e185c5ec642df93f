// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pdf-chat-go/internal/model"
	"pdf-chat-go/internal/retrieval"
	"pdf-chat-go/internal/session"
	"pdf-chat-go/internal/synth"
	"pdf-chat-go/pkg/llm"
	"pdf-chat-go/pkg/log"
	"pdf-chat-go/pkg/metrics"
)

// ErrEmptyQuestion 表示问题为空或只有空白。
var ErrEmptyQuestion = errors.New("question must not be empty")

const (
	pathLLM      = "llm"
	pathFallback = "fallback"
	pathNone     = "none"
)

// ChatOptions 是问答流程的可调参数，由配置在启动时生成。
type ChatOptions struct {
	TopK           int
	KeywordTopK    int
	HistoryForLLM  int
	MaxAnswerChars int
	Prompt         synth.PromptConfig
	Generation     *llm.GenerationParams
}

// AskResult 是一轮问答的结果。
type AskResult struct {
	Answer       string              `json:"response"`
	ResponseTime float64             `json:"response_time"`
	Mode         model.Mode          `json:"mode"`
	Outcome      model.Outcome       `json:"outcome"`
	Path         string              `json:"path"`
	Sources      []model.ScoredChunk `json:"sources,omitempty"`
}

// SessionReprocessor 在会话丢失时按会话 ID 重建索引，由 DocumentService 实现。
type SessionReprocessor interface {
	ReprocessSession(ctx context.Context, sessionID string) (*ProcessResult, error)
}

// ChatService 定义了聊天操作的接口。
type ChatService interface {
	// Ask 回答一个问题并把这一轮追加到会话历史。LLM 调用失败时返回
	// llm.ErrServiceUnavailable，历史保持不变。
	Ask(ctx context.Context, sessionID, question string) (*AskResult, error)
	// Resume 确认会话可以提问，会话丢失时与 Ask 一样尝试从归档重建。
	Resume(ctx context.Context, sessionID string) error
	History(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	ListSessions(ctx context.Context) ([]model.SessionInfo, error)
}

type chatService struct {
	store       session.Store
	locker      *session.Locker
	llmClient   llm.Client
	reprocessor SessionReprocessor
	opts        ChatOptions
}

// NewChatService 创建一个新的 ChatService 实例。llmClient 为 nil 时所有问题都走模板回答；
// reprocessor 为 nil 时不会自动恢复丢失的会话。
func NewChatService(store session.Store, locker *session.Locker, llmClient llm.Client, reprocessor SessionReprocessor, opts ChatOptions) ChatService {
	if opts.TopK <= 0 {
		opts.TopK = retrieval.DefaultTopK
	}
	if opts.KeywordTopK <= 0 {
		opts.KeywordTopK = retrieval.DefaultKeywordTopN
	}
	if opts.MaxAnswerChars <= 0 {
		opts.MaxAnswerChars = synth.DefaultMaxAnswerChars
	}
	if locker == nil {
		locker = session.NewLocker()
	}
	return &chatService{
		store:       store,
		locker:      locker,
		llmClient:   llmClient,
		reprocessor: reprocessor,
		opts:        opts,
	}
}

func (s *chatService) Ask(ctx context.Context, sessionID, question string) (*AskResult, error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	// 同一会话的整轮问答串行执行，保证历史按到达顺序追加
	unlock, err := s.locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	res := &AskResult{Mode: sess.Retriever.Kind(), Outcome: model.OutcomeSuccess}
	if sess.Info.DegradedReason != "" {
		res.Outcome = model.OutcomeDegraded
	}

	if len(sess.Retriever.Chunks()) == 0 {
		res.Answer = synth.NoContentMessage
		res.Path = pathNone
	} else {
		hits, r := s.retrieve(ctx, sess.Retriever, question, res)
		res.Sources = hits
		if r.Kind() == model.ModeVector && s.llmClient != nil {
			answer, err := s.complete(ctx, hits, sess.History, question)
			if err != nil {
				metrics.QuestionsAnswered.WithLabelValues(pathLLM, string(model.OutcomeFatal)).Inc()
				return nil, err
			}
			res.Answer = answer
			res.Path = pathLLM
		} else {
			res.Answer = synth.Fallback(question, hits, s.opts.MaxAnswerChars)
			res.Path = pathFallback
		}
	}

	if err := s.store.AppendTurn(ctx, sessionID,
		model.NewUserMessage(question, start), model.NewAssistantMessage(res.Answer, time.Now())); err != nil {
		log.Errorf("[ChatService] 保存对话历史失败, session: %s, error: %v", sessionID, err)
		return nil, err
	}

	elapsed := time.Since(start)
	res.ResponseTime = elapsed.Seconds()
	metrics.QuestionsAnswered.WithLabelValues(res.Path, string(res.Outcome)).Inc()
	metrics.AskDuration.Observe(res.ResponseTime)
	log.Infow("[ChatService] 问答完成",
		"session_id", sessionID, "mode", res.Mode, "path", res.Path, "hits", len(res.Sources), "elapsed", elapsed.String())
	return res, nil
}

func (s *chatService) Resume(ctx context.Context, sessionID string) error {
	unlock, err := s.locker.Lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()
	_, err = s.loadSession(ctx, sessionID)
	return err
}

// loadSession 读取会话；会话过期或本进程没有它的索引时尝试从归档重建一次。
func (s *chatService) loadSession(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, session.ErrIndexLost) && !errors.Is(err, session.ErrNotFound) {
		return nil, err
	}
	if s.reprocessor == nil {
		return nil, session.ErrNotFound
	}

	log.Infof("[ChatService] 会话不可用, 尝试从归档重建, session: %s, reason: %v", sessionID, err)
	if _, rerr := s.reprocessor.ReprocessSession(ctx, sessionID); rerr != nil {
		log.Warnf("[ChatService] 自动重建会话失败, session: %s, error: %v", sessionID, rerr)
		return nil, session.ErrNotFound
	}
	sess, err = s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, session.ErrNotFound
	}
	return sess, nil
}

// retrieve 向量检索失败时改用同一批文本块上的关键词检索，本轮结果标记为降级。
func (s *chatService) retrieve(ctx context.Context, r retrieval.Retriever, question string, res *AskResult) ([]model.ScoredChunk, retrieval.Retriever) {
	n := s.opts.KeywordTopK
	if r.Kind() == model.ModeVector {
		n = s.opts.TopK
	}
	hits, err := r.Retrieve(ctx, question, n)
	if err == nil {
		return hits, r
	}

	log.Warnf("[ChatService] 向量检索失败, 回退到关键词检索, error: %v", err)
	metrics.FallbackActivations.WithLabelValues("query").Inc()
	kw := retrieval.KeywordFallback(r)
	hits, _ = kw.Retrieve(ctx, question, s.opts.KeywordTopK)
	res.Mode = model.ModeKeyword
	res.Outcome = model.OutcomeDegraded
	return hits, kw
}

func (s *chatService) complete(ctx context.Context, hits []model.ScoredChunk, history []model.ChatMessage, question string) (string, error) {
	if n := s.opts.HistoryForLLM; n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	msgs := synth.BuildMessages(s.opts.Prompt, hits, history, question)
	raw, err := s.llmClient.Complete(ctx, msgs, s.opts.Generation)
	if err != nil {
		log.Warnf("[ChatService] LLM 调用失败: %v", err)
		if !errors.Is(err, llm.ErrServiceUnavailable) {
			err = fmt.Errorf("%w: %v", llm.ErrServiceUnavailable, err)
		}
		return "", err
	}
	answer := strings.TrimSpace(synth.GuardLength(synth.CleanChunkText(raw), s.opts.MaxAnswerChars))
	if answer == "" {
		return "", fmt.Errorf("%w: %v", llm.ErrServiceUnavailable, llm.ErrEmptyAnswer)
	}
	return answer, nil
}

func (s *chatService) History(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	return s.store.History(ctx, sessionID)
}

func (s *chatService) ListSessions(ctx context.Context) ([]model.SessionInfo, error) {
	return s.store.List(ctx)
}
