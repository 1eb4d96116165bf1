package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ImportResponse — run из API.
type ImportResponse struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	Total      int        `json:"total"`
	Processed  int        `json:"processed"`
	Success    int        `json:"success"`
	Error      int        `json:"error"`
	Pending    int        `json:"pending"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ItemResponse — item из API.
type ItemResponse struct {
	ID           string    `json:"id"`
	ChannelID    string    `json:"channel_id"`
	Title        string    `json:"title,omitempty"`
	Status       string    `json:"status"`
	Attempts     int       `json:"attempts"`
	ErrorTag     string    `json:"error_tag,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RetrySummary — сводка ошибок run.
type RetrySummary struct {
	QuotaErrors     int    `json:"quota_errors"`
	NetworkErrors   int    `json:"network_errors"`
	AuthErrors      int    `json:"auth_errors"`
	PermanentErrors int    `json:"permanent_errors"`
	UnknownErrors   int    `json:"unknown_errors"`
	PendingCount    int    `json:"pending_count"`
	Paused          bool   `json:"paused"`
	WorkerState     string `json:"worker_state,omitempty"`
}

// QuotaEstimate — оценка расхода дневной квоты.
type QuotaEstimate struct {
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	Exhausted bool      `json:"exhausted"`
	ResetsAt  time.Time `json:"resets_at"`
}

// StatusResponse — статус run.
type StatusResponse struct {
	Run    ImportResponse `json:"run"`
	Recent []ItemResponse `json:"recent"`
	Retry  RetrySummary   `json:"retry"`
	Quota  *QuotaEstimate `json:"quota,omitempty"`
}

// AuthStatusResponse — статус авторизации.
type AuthStatusResponse struct {
	Configured    bool `json:"configured"`
	Authenticated bool `json:"authenticated"`
}

// ListImportsOpts — параметры фильтрации runs.
type ListImportsOpts struct {
	Status string
	Limit  int
	Offset int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Bulksub API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Imports ---

// ListImports возвращает список runs с фильтрацией.
func (c *Client) ListImports(opts ListImportsOpts) ([]ImportResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", fmt.Sprintf("%d", opts.Offset))
	}

	var runs []ImportResponse
	err := c.list("/api/v1/imports", params, &runs)
	return runs, err
}

// CreateImport загружает файл со списком каналов.
// Файлы *.json отправляются как {"entries": [...]}, остальные как CSV.
func (c *Client) CreateImport(path string) (*ImportResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var run ImportResponse
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = c.send(http.MethodPost, "/api/v1/imports", "application/json", f, &run)
		return &run, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	err = c.send(http.MethodPost, "/api/v1/imports", mw.FormDataContentType(), &buf, &run)
	return &run, err
}

// GetImport возвращает статус run.
func (c *Client) GetImport(id string) (*StatusResponse, error) {
	var status StatusResponse
	err := c.get("/api/v1/imports/"+id, &status)
	return &status, err
}

// StartImport запускает run. delayMs <= 0 означает задержку по умолчанию.
func (c *Client) StartImport(id string, delayMs int64) (*ImportResponse, error) {
	var body any
	if delayMs > 0 {
		body = map[string]int64{"delay_ms": delayMs}
	}
	var run ImportResponse
	err := c.post("/api/v1/imports/"+id+"/start", body, &run)
	return &run, err
}

// TogglePause переключает паузу и возвращает новое состояние.
func (c *Client) TogglePause(id string) (bool, error) {
	var resp struct {
		Paused bool `json:"paused"`
	}
	err := c.post("/api/v1/imports/"+id+"/pause", nil, &resp)
	return resp.Paused, err
}

// RetryQuotaErrors возвращает QUOTA ошибки в очередь.
func (c *Client) RetryQuotaErrors(id string) (int, error) {
	var resp struct {
		Reset int `json:"reset"`
	}
	err := c.post("/api/v1/imports/"+id+"/retry-quota-errors", nil, &resp)
	return resp.Reset, err
}

// AutoResume запрашивает проверку квоты.
func (c *Client) AutoResume(id string) (bool, error) {
	var resp struct {
		Resumed bool `json:"resumed"`
	}
	err := c.post("/api/v1/imports/"+id+"/auto-resume", nil, &resp)
	return resp.Resumed, err
}

// --- Auth ---

// AuthStatus возвращает статус авторизации.
func (c *Client) AuthStatus() (*AuthStatusResponse, error) {
	var status AuthStatusResponse
	err := c.get("/api/v1/auth/status", &status)
	return &status, err
}

// AuthURL возвращает адрес, с которого начинается OAuth flow.
func (c *Client) AuthURL() string {
	return c.baseURL + "/auth"
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.decodeData(resp, result)
}

func (c *Client) send(method, path, contentType string, body io.Reader, result any) error {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.decodeData(resp, result)
}

func (c *Client) decodeData(resp *http.Response, result any) error {
	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
