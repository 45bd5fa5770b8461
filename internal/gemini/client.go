package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// DefaultBaseURL — адрес публичного Gemini API.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// apiKeyHeader — заголовок передачи API-ключа (ключ не попадает в URL и логи).
const apiKeyHeader = "x-goog-api-key"

// Client — HTTP-клиент к Gemini API: Files API и потоковая генерация.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string //nolint:gosec // G101: поле структуры, значение из окружения
	logger     *slog.Logger
}

// New создаёт клиент Gemini API.
// baseURL — базовый URL API (пустая строка — DefaultBaseURL).
// httpClient — HTTP-клиент; nil — клиент без таймаута (потоковые ответы
// могут длиться минутами).
func New(baseURL, apiKey string, httpClient *http.Client, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		logger:     logger.With(slog.String("component", "gemini_client")),
	}
}

// --- Files API ---

// UploadFile загружает локальный файл через resumable upload.
//
// Поток:
//  1. POST /upload/v1beta/files (X-Goog-Upload-Command: start) → X-Goog-Upload-URL
//  2. POST {upload_url} (X-Goog-Upload-Command: upload, finalize) → {"file": {...}}
func (c *Client) UploadFile(ctx context.Context, filePath, displayName, mimeType string) (*File, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("открытие файла для загрузки: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("получение размера файла: %w", err)
	}
	size := info.Size()

	uploadURL, err := c.startUpload(ctx, displayName, mimeType, size)
	if err != nil {
		return nil, fmt.Errorf("UploadFile: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, f)
	if err != nil {
		return nil, fmt.Errorf("создание запроса upload: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("X-Goog-Upload-Offset", "0")
	req.Header.Set("X-Goog-Upload-Command", "upload, finalize")
	c.authorize(req)

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL выдан Gemini API
	if err != nil {
		return nil, fmt.Errorf("UploadFile: передача данных: %w", err)
	}

	var env fileEnvelope
	if err := decodeResponse(resp, &env); err != nil {
		return nil, fmt.Errorf("UploadFile: %w", err)
	}

	c.logger.Debug("Файл загружен в Gemini",
		slog.String("name", env.File.Name),
		slog.String("display_name", displayName),
		slog.Int64("size", size),
		slog.String("state", env.File.State),
	)

	return &env.File, nil
}

// startUpload открывает сессию resumable upload и возвращает её URL.
func (c *Client) startUpload(ctx context.Context, displayName, mimeType string, size int64) (string, error) {
	var body uploadStartRequest
	body.File.DisplayName = displayName

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("сериализация тела запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/v1beta/files", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("создание запроса start upload: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Upload-Protocol", "resumable")
	req.Header.Set("X-Goog-Upload-Command", "start")
	req.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.FormatInt(size, 10))
	req.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)
	c.authorize(req)

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return "", fmt.Errorf("запрос start upload: %w", err)
	}
	if err := decodeResponse(resp, nil); err != nil {
		return "", err
	}

	uploadURL := resp.Header.Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		return "", fmt.Errorf("отсутствует X-Goog-Upload-URL в ответе")
	}
	return uploadURL, nil
}

// GetFile возвращает актуальное состояние файла.
// name — имя ресурса (files/abc123).
func (c *Client) GetFile(ctx context.Context, name string) (*File, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1beta/"+name, nil)
	if err != nil {
		return nil, fmt.Errorf("GetFile: %w", err)
	}

	var file File
	if err := decodeResponse(resp, &file); err != nil {
		return nil, fmt.Errorf("GetFile: %w", err)
	}
	return &file, nil
}

// DeleteFile удаляет файл из хранилища Gemini.
func (c *Client) DeleteFile(ctx context.Context, name string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/v1beta/"+name, nil)
	if err != nil {
		return fmt.Errorf("DeleteFile: %w", err)
	}
	if err := decodeResponse(resp, nil); err != nil {
		return fmt.Errorf("DeleteFile: %w", err)
	}
	return nil
}

// --- Generation ---

// StreamGenerateContent вызывает модель в потоковом режиме (SSE).
// Ошибка возвращается, если сервис отклонил запрос; ответ читается лениво
// через Stream. Вызывающий код обязан дочитать или закрыть Stream.
func (c *Client) StreamGenerateContent(ctx context.Context, model string, body *GenerateContentRequest) (*Stream, error) {
	model = strings.TrimPrefix(model, "models/")
	path := "/v1beta/models/" + url.PathEscape(model) + ":streamGenerateContent?alt=sse"

	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, fmt.Errorf("StreamGenerateContent: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("StreamGenerateContent: %w", responseError(resp))
	}

	return NewStream(resp.Body), nil
}

// --- HTTP helpers ---

// authorize добавляет API-ключ в заголовки запроса.
func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
}

// do выполняет JSON-запрос к API. body == nil — запрос без тела.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	bodyReader := io.Reader(http.NoBody)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return nil, fmt.Errorf("запрос %s %s: %w", method, path, err)
	}
	return resp, nil
}

// decodeResponse проверяет статус и декодирует JSON-ответ в target.
// Тело ответа закрывается.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("декодирование ответа Gemini: %w", err)
		}
	}
	return nil
}

// responseError формирует APIError из ответа с кодом ошибки.
// Тело ответа закрывается.
func responseError(resp *http.Response) error {
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		apiErr.Status = env.Error.Status
		apiErr.Message = env.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
