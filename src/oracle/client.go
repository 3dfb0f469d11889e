package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bitly/go-simplejson"
)

var (
	// ErrEmptyResponse 模型返回内容为空
	ErrEmptyResponse = errors.New("empty oracle response")

	// ErrBadStatus 非 2xx 状态码
	ErrBadStatus = errors.New("oracle returned non-2xx status")
)

// Client 外部决策接口，输入提示词，返回原始文本
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ChatClient OpenAI 兼容的 chat completions 客户端
type ChatClient struct {
	conf       Config
	httpClient *http.Client
}

var _ Client = (*ChatClient)(nil)

// NewChatClient 创建客户端，每次运行构造一次并注入到信号源
func NewChatClient(conf Config) *ChatClient {
	timeout := time.Duration(conf.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatClient{
		conf:       conf,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

// Complete 发送单轮对话，返回 choices[0].message.content
func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	req := chatRequest{
		Model:       c.conf.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.conf.Temperature,
	}
	if c.conf.JSONMode {
		req.ResponseFormat = map[string]string{"type": "json_object"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode oracle request: %w", err)
	}

	url := strings.TrimRight(c.conf.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build oracle request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.conf.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.conf.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read oracle response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %d %s", ErrBadStatus, resp.StatusCode, truncate(string(raw), 200))
	}

	js, err := simplejson.NewJson(raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode oracle envelope: %w", err)
	}
	content, err := js.Get("choices").GetIndex(0).Get("message").Get("content").String()
	if err != nil {
		return "", fmt.Errorf("%w: no message content", ErrEmptyResponse)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
