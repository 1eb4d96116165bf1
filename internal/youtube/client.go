package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL — базовый URL YouTube Data API v3.
	DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

	defaultTimeout = 30 * time.Second

	// maxErrorBody — сколько байт тела ошибки читаем для разбора.
	maxErrorBody = 64 << 10
)

// Config — конфигурация клиента.
type Config struct {
	// BaseURL — базовый URL API. Default: DefaultBaseURL.
	BaseURL string

	// HTTPClient — HTTP-клиент. Default: &http.Client{}.
	HTTPClient *http.Client

	// Timeout — таймаут одного запроса. Default: 30s.
	Timeout time.Duration
}

// Client — клиент YouTube Data API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// New создаёт клиент.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		timeout:    cfg.Timeout,
	}
}

// subscriptionRequest — тело запроса subscriptions.insert.
type subscriptionRequest struct {
	Snippet struct {
		ResourceID struct {
			Kind      string `json:"kind"`
			ChannelID string `json:"channelId"`
		} `json:"resourceId"`
	} `json:"snippet"`
}

// Subscribe подписывает аккаунт владельца токена на канал.
//
// Выполняет POST {BaseURL}/subscriptions?part=snippet.
// При ответе не 2xx возвращает *APIError; транспортные ошибки
// возвращаются обёрнутыми, чтобы errors.Is/As видели исходную причину.
func (c *Client) Subscribe(ctx context.Context, channelID string, tok *oauth2.Token) error {
	if tok == nil {
		return ErrNoToken
	}

	var body subscriptionRequest
	body.Snippet.ResourceID.Kind = "youtube#channel"
	body.Snippet.ResourceID.ChannelID = channelID

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal subscription: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/subscriptions?part=snippet", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	tok.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", channelID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return parseAPIError(resp.StatusCode, respBody)
}
