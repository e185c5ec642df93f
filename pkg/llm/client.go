// Package llm provides a client for OpenAI/DeepSeek-compatible chat completion APIs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pdf-chat-go/internal/config"
	"pdf-chat-go/pkg/log"
)

var (
	// ErrServiceUnavailable 表示 LLM 调用失败（网络、超时、非 200），调用方可以重试。
	ErrServiceUnavailable = errors.New("llm service unavailable")
	// ErrEmptyAnswer 表示接口返回了空回答。
	ErrEmptyAnswer = errors.New("llm returned an empty answer")
)

// Client defines the interface for an LLM client.
type Client interface {
	// Complete 以 role-based 消息与可选生成参数调用聊天接口，返回完整回答。
	Complete(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
}

type deepseekClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new LLM client. Each request is bounded by cfg.Timeout().
func NewClient(cfg config.LLMConfig) Client {
	return &deepseekClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout()},
	}
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// DefaultGeneration 从配置构造生成参数，零值不下发。
func DefaultGeneration(cfg config.LLMGenerationConfig) *GenerationParams {
	gen := &GenerationParams{}
	if cfg.Temperature != 0 {
		t := cfg.Temperature
		gen.Temperature = &t
	}
	if cfg.TopP != 0 {
		p := cfg.TopP
		gen.TopP = &p
	}
	if cfg.MaxTokens != 0 {
		m := cfg.MaxTokens
		gen.MaxTokens = &m
	}
	return gen
}

func (c *deepseekClient) Complete(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
	}
	// 传参优先，否则使用全局配置
	if gen == nil {
		gen = DefaultGeneration(c.cfg.Generation)
	}
	reqBody.Temperature = gen.Temperature
	reqBody.TopP = gen.TopP
	reqBody.MaxTokens = gen.MaxTokens

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[LLMClient] 调用 chat api 失败, error: %v", err)
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		log.Errorf("[LLMClient] chat api 返回非 200 状态码: %s", resp.Status)
		return "", fmt.Errorf("%w: status %s, body: %s", ErrServiceUnavailable, resp.Status, string(bodyBytes))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrServiceUnavailable, err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", ErrEmptyAnswer
	}
	return out.Choices[0].Message.Content, nil
}
