package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bigkaa/codetrace/internal/domain/asset"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupMockGemini создаёт mock HTTP-сервер Gemini API.
func setupMockGemini(t *testing.T, handler func(server *httptest.Server) http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(apiKeyHeader) != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		handler(server)(w, r)
	}))
	t.Cleanup(server.Close)

	return server, New(server.URL+"/", "test-key", server.Client(), testLogger())
}

// writeTempFile создаёт временный файл с заданным содержимым.
func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bug.mp4")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("ошибка записи файла: %v", err)
	}
	return path
}

// TestClient_UploadFile проверяет двухшаговый resumable upload.
func TestClient_UploadFile(t *testing.T) {
	var uploaded string

	_, client := setupMockGemini(t, func(server *httptest.Server) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/upload/v1beta/files":
				if r.Header.Get("X-Goog-Upload-Command") != "start" {
					t.Errorf("ожидалась команда start, получено %q", r.Header.Get("X-Goog-Upload-Command"))
				}
				if r.Header.Get("X-Goog-Upload-Header-Content-Length") != "10" {
					t.Errorf("неверный размер: %q", r.Header.Get("X-Goog-Upload-Header-Content-Length"))
				}
				if r.Header.Get("X-Goog-Upload-Header-Content-Type") != "video/mp4" {
					t.Errorf("неверный MIME: %q", r.Header.Get("X-Goog-Upload-Header-Content-Type"))
				}
				var body uploadStartRequest
				_ = json.NewDecoder(r.Body).Decode(&body)
				if body.File.DisplayName != "bug.mp4" {
					t.Errorf("display_name: получено %q", body.File.DisplayName)
				}
				w.Header().Set("X-Goog-Upload-URL", server.URL+"/upload-session/1")
				w.WriteHeader(http.StatusOK)
			case "/upload-session/1":
				if r.Header.Get("X-Goog-Upload-Command") != "upload, finalize" {
					t.Errorf("ожидалась команда upload, finalize, получено %q", r.Header.Get("X-Goog-Upload-Command"))
				}
				data, _ := io.ReadAll(r.Body)
				uploaded = string(data)
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(fileEnvelope{File: File{
					Name:        "files/abc",
					DisplayName: "bug.mp4",
					MimeType:    "video/mp4",
					URI:         "https://example/v1beta/files/abc",
					State:       "PROCESSING",
				}})
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}
	})

	file, err := client.UploadFile(context.Background(), writeTempFile(t, "0123456789"), "bug.mp4", "video/mp4")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if file.Name != "files/abc" || file.State != "PROCESSING" {
		t.Errorf("неверный ответ: %+v", file)
	}
	if uploaded != "0123456789" {
		t.Errorf("переданы байты %q", uploaded)
	}
}

// TestClient_UploadFile_NoSessionURL проверяет ошибку при отсутствии X-Goog-Upload-URL.
func TestClient_UploadFile_NoSessionURL(t *testing.T) {
	_, client := setupMockGemini(t, func(_ *httptest.Server) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}
	})

	if _, err := client.UploadFile(context.Background(), writeTempFile(t, "x"), "bug.mp4", "video/mp4"); err == nil {
		t.Fatal("ожидалась ошибка")
	}
}

// TestFiles_GetAndDelete проверяет адаптер Files: Get и Delete.
func TestFiles_GetAndDelete(t *testing.T) {
	deleted := 0

	_, client := setupMockGemini(t, func(_ *httptest.Server) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1beta/files/abc" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			switch r.Method {
			case http.MethodGet:
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(File{Name: "files/abc", State: "ACTIVE", URI: "u"})
			case http.MethodDelete:
				deleted++
				_, _ = w.Write([]byte("{}"))
			}
		}
	})

	files := client.Files()
	a, err := files.Get(context.Background(), "files/abc")
	if err != nil {
		t.Fatalf("неожиданная ошибка Get: %v", err)
	}
	if a.State != asset.StateActive || a.RawState != "ACTIVE" || a.URI != "u" {
		t.Errorf("неверный ассет: %+v", a)
	}

	if err := files.Delete(context.Background(), "files/abc"); err != nil {
		t.Fatalf("неожиданная ошибка Delete: %v", err)
	}
	if deleted != 1 {
		t.Errorf("ожидался 1 DELETE, получено %d", deleted)
	}
}

// TestClient_APIError проверяет разбор тела ошибки Google API.
func TestClient_APIError(t *testing.T) {
	_, client := setupMockGemini(t, func(_ *httptest.Server) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"нет доступа","status":"PERMISSION_DENIED"}}`))
		}
	})

	_, err := client.GetFile(context.Background(), "files/abc")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("ожидалась APIError, получено %v", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Status != "PERMISSION_DENIED" || apiErr.Message != "нет доступа" {
		t.Errorf("неверная APIError: %+v", apiErr)
	}
}

// TestClient_StreamGenerateContent проверяет потоковую генерацию.
func TestClient_StreamGenerateContent(t *testing.T) {
	var got GenerateContentRequest

	_, client := setupMockGemini(t, func(_ *httptest.Server) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1beta/models/gemini-2.5-flash:streamGenerateContent" {
				t.Errorf("неверный путь: %s", r.URL.Path)
			}
			if r.URL.Query().Get("alt") != "sse" {
				t.Error("ожидался alt=sse")
			}
			_ = json.NewDecoder(r.Body).Decode(&got)

			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = io.WriteString(w,
				`data: {"candidates":[{"content":{"parts":[{"text":"Hello"}]}}]}`+"\n\n"+
					": keep-alive\n\n"+
					`data: {"candidates":[{"content":{"parts":[{"text":", "},{"text":"world"}]}}]}`+"\n\n"+
					`data: {"candidates":[{"finishReason":"STOP"}]}`+"\n\n")
		}
	})

	req := &GenerateContentRequest{
		SystemInstruction: &Content{Parts: []Part{{Text: "sys"}}},
		Contents: []Content{{Role: "user", Parts: []Part{
			{FileData: &FileData{MimeType: "video/mp4", FileURI: "u"}},
			{Text: "prompt"},
		}}},
	}
	stream, err := client.StreamGenerateContent(context.Background(), "models/gemini-2.5-flash", req)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	var chunks []string
	for text, err := range stream.Chunks() {
		if err != nil {
			t.Fatalf("ошибка в потоке: %v", err)
		}
		chunks = append(chunks, text)
	}

	if strings.Join(chunks, "|") != "Hello|, world" {
		t.Errorf("фрагменты: %q", chunks)
	}
	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "sys" {
		t.Error("systemInstruction не передана")
	}
	if len(got.Contents) != 1 || got.Contents[0].Parts[0].FileData == nil || got.Contents[0].Parts[1].Text != "prompt" {
		t.Errorf("неверное содержимое запроса: %+v", got.Contents)
	}
}

// TestClient_StreamGenerateContent_Rejected проверяет отказ до начала потока.
func TestClient_StreamGenerateContent_Rejected(t *testing.T) {
	_, client := setupMockGemini(t, func(_ *httptest.Server) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`))
		}
	})

	_, err := client.StreamGenerateContent(context.Background(), "gemini-2.5-flash", &GenerateContentRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != "RESOURCE_EXHAUSTED" {
		t.Fatalf("ожидалась APIError RESOURCE_EXHAUSTED, получено %v", err)
	}
}

// trackingBody — тело ответа, отслеживающее закрытие.
type trackingBody struct {
	io.Reader
	closed int
}

func (b *trackingBody) Close() error {
	b.closed++
	return nil
}

// TestStream_SinglePass проверяет однопроходность потока.
func TestStream_SinglePass(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(`data: {"candidates":[{"content":{"parts":[{"text":"a"}]}}]}` + "\n")}
	stream := NewStream(body)

	count := 0
	for _, err := range stream.Chunks() {
		if err != nil {
			t.Fatalf("неожиданная ошибка: %v", err)
		}
		count++
	}
	if count != 1 {
		t.Errorf("ожидался 1 фрагмент (событие без завершающей пустой строки), получено %d", count)
	}

	for _, err := range stream.Chunks() {
		if !errors.Is(err, ErrStreamConsumed) {
			t.Errorf("ожидалась ErrStreamConsumed, получено %v", err)
		}
	}
	if body.closed != 1 {
		t.Errorf("тело должно быть закрыто один раз, закрыто %d", body.closed)
	}
}

// TestStream_EarlyStop проверяет закрытие тела при досрочном выходе.
func TestStream_EarlyStop(t *testing.T) {
	event := `data: {"candidates":[{"content":{"parts":[{"text":"x"}]}}]}` + "\n\n"
	body := &trackingBody{Reader: strings.NewReader(strings.Repeat(event, 5))}
	stream := NewStream(body)

	for range stream.Chunks() {
		break
	}
	if body.closed != 1 {
		t.Errorf("тело должно быть закрыто после break, закрыто %d", body.closed)
	}
	if err := stream.Close(); err != nil {
		t.Errorf("повторный Close: %v", err)
	}
}

// TestStream_ErrorEvent проверяет ошибку, пришедшую внутри потока.
func TestStream_ErrorEvent(t *testing.T) {
	body := io.NopCloser(strings.NewReader(
		`data: {"candidates":[{"content":{"parts":[{"text":"part"}]}}]}` + "\n\n" +
			`data: {"error":{"code":500,"message":"internal","status":"INTERNAL"}}` + "\n\n" +
			`data: {"candidates":[{"content":{"parts":[{"text":"never"}]}}]}` + "\n\n"))

	var texts []string
	var lastErr error
	for text, err := range NewStream(body).Chunks() {
		if err != nil {
			lastErr = err
			continue
		}
		texts = append(texts, text)
	}

	if len(texts) != 1 || texts[0] != "part" {
		t.Errorf("ожидался один фрагмент до ошибки, получено %q", texts)
	}
	var apiErr *APIError
	if !errors.As(lastErr, &apiErr) || apiErr.Status != "INTERNAL" {
		t.Errorf("ожидалась APIError INTERNAL, получено %v", lastErr)
	}
}

// TestStream_MalformedEvent проверяет ошибку разбора фрагмента.
func TestStream_MalformedEvent(t *testing.T) {
	body := io.NopCloser(strings.NewReader("data: {not json\n\n"))

	var gotErr error
	for _, err := range NewStream(body).Chunks() {
		gotErr = err
	}
	if gotErr == nil {
		t.Error("ожидалась ошибка разбора")
	}
}

// TestStream_PromptBlocked проверяет, что заблокированный запрос даёт ошибку, а не пустой ответ.
func TestStream_PromptBlocked(t *testing.T) {
	body := io.NopCloser(strings.NewReader(`data: {"promptFeedback":{"blockReason":"SAFETY"}}` + "\n\n"))

	var texts []string
	var gotErr error
	for text, err := range NewStream(body).Chunks() {
		if err != nil {
			gotErr = err
			continue
		}
		texts = append(texts, text)
	}

	if len(texts) != 0 {
		t.Errorf("фрагментов быть не должно, получено %q", texts)
	}
	var blocked *BlockedError
	if !errors.As(gotErr, &blocked) || blocked.Reason != "SAFETY" {
		t.Errorf("ожидалась BlockedError SAFETY, получено %v", gotErr)
	}
}
