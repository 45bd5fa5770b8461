package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/codetrace/internal/api/errors"
	"github.com/bigkaa/codetrace/internal/history"
	"github.com/bigkaa/codetrace/internal/ingest"
	"github.com/bigkaa/codetrace/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeRunner — конвейер с заранее заданным поведением.
type fakeRunner struct {
	chunks []string
	out    *service.Outcome
	err    error
	req    service.Request
	video  string
}

func (f *fakeRunner) Run(_ context.Context, req service.Request, obs service.Observer) (*service.Outcome, error) {
	f.req = req
	if req.Video != nil {
		b, _ := io.ReadAll(req.Video)
		f.video = string(b)
	}
	obs.Stage(service.StageParsing)
	for _, c := range f.chunks {
		obs.Chunk(c)
	}
	return f.out, f.err
}

// newTestRouter собирает роутер с указанным конвейером и файловой историей.
func newTestRouter(t *testing.T, runner Runner) (http.Handler, history.Store) {
	t.Helper()
	dir := t.TempDir()
	store := history.NewFileStore(filepath.Join(dir, "analysis_history.json"), testLogger())
	defaults := ingest.NewExtensionSet(ingest.DefaultExtensions...)

	api := NewAPIHandler(
		NewAnalysesHandler(runner, defaults, 1<<20, 1<<20, testLogger()),
		NewHistoryHandler(store, testLogger()),
		NewExtensionsHandler(defaults),
		NewHealthHandler(dir, filepath.Join(dir, "analysis_history.json"), true),
	)
	r := chi.NewRouter()
	api.Mount(r)
	return r, store
}

// multipartRequest формирует POST /api/v1/analyses с указанными полями.
func multipartRequest(t *testing.T, files map[string]string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for field, name := range files {
		fw, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		_, _ = fw.Write([]byte("content of " + name))
	}
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func validFiles() map[string]string {
	return map[string]string{"archive": "project.zip", "video": "bug.mp4"}
}

// decodeError извлекает код ошибки из тела ответа.
func decodeError(t *testing.T, body io.Reader) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("тело ошибки не JSON: %v", err)
	}
	return resp.Error.Code
}

func TestCreateAnalysis_Streams(t *testing.T) {
	runner := &fakeRunner{
		chunks: []string{"## Root", " cause"},
		out:    &service.Outcome{Report: "## Root cause", Entry: &history.Entry{ID: 7}},
	}
	router, _ := newTestRouter(t, runner)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, validFiles(), map[string]string{
		"description": "кнопка не работает",
		"extensions":  "go, .md",
	}))
	resp := rec.Result()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("статус: хотели 200, получили %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "## Root cause" {
		t.Errorf("тело: %q", body)
	}
	if got := resp.Trailer.Get(TrailerStatus); got != StatusComplete {
		t.Errorf("%s: хотели %s, получили %q", TrailerStatus, StatusComplete, got)
	}
	if got := resp.Trailer.Get(TrailerHistoryID); got != "7" {
		t.Errorf("%s: хотели 7, получили %q", TrailerHistoryID, got)
	}

	// Параметры запроса
	if runner.req.ArchiveName != "project.zip" || runner.req.VideoName != "bug.mp4" {
		t.Errorf("имена файлов: %s %s", runner.req.ArchiveName, runner.req.VideoName)
	}
	if string(runner.req.Archive) != "content of project.zip" || runner.video != "content of bug.mp4" {
		t.Error("содержимое файлов передано неверно")
	}
	if runner.req.Description != "кнопка не работает" {
		t.Errorf("описание: %q", runner.req.Description)
	}
	if got := runner.req.Extensions.Sorted(); len(got) != 2 || got[0] != ".go" || got[1] != ".md" {
		t.Errorf("расширения: %v", got)
	}
}

func TestCreateAnalysis_DefaultExtensions(t *testing.T) {
	runner := &fakeRunner{out: &service.Outcome{}}
	router, _ := newTestRouter(t, runner)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, validFiles(), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус: хотели 200, получили %d", rec.Code)
	}
	for _, ext := range ingest.DefaultExtensions {
		if !runner.req.Extensions.Contains(ext) {
			t.Errorf("расширение по умолчанию %s отсутствует", ext)
		}
	}
}

func TestCreateAnalysis_Validation(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{"нет архива", map[string]string{"video": "bug.mp4"}},
		{"нет видео", map[string]string{"archive": "project.zip"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			router, _ := newTestRouter(t, runner)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, multipartRequest(t, tt.files, nil))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("статус: хотели 400, получили %d", rec.Code)
			}
			if code := decodeError(t, rec.Body); code != apierrors.CodeValidationError {
				t.Errorf("код: %s", code)
			}
		})
	}

	t.Run("не multipart", func(t *testing.T) {
		router, _ := newTestRouter(t, &fakeRunner{})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/analyses", bytes.NewBufferString("{}")))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("статус: хотели 400, получили %d", rec.Code)
		}
	})
}

func TestCreateAnalysis_ErrorsBeforeStream(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"нет ключа", service.ErrNotConfigured, 503, apierrors.CodeAPINotConfigured},
		{"пустой корпус", service.ErrNoMatchingFiles, 422, apierrors.CodeNoMatchingFiles},
		{"битый архив", &ingest.Error{Err: errors.New("zip: not a valid zip file")}, 422, apierrors.CodeIngestionError},
		{"загрузка", &service.UploadError{State: "FAILED"}, 502, apierrors.CodeUploadFailed},
		{"таймаут загрузки", &service.UploadTimeoutError{State: "PROCESSING", Attempts: 3}, 504, apierrors.CodeUploadTimeout},
		{"анализ", &service.AnalysisError{Err: errors.New("quota")}, 502, apierrors.CodeAnalysisFailed},
		{"прочее", fmt.Errorf("обёртка: %w", context.Canceled), 500, apierrors.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t, &fakeRunner{err: tt.err})

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, multipartRequest(t, validFiles(), nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("статус: хотели %d, получили %d", tt.wantStatus, rec.Code)
			}
			if code := decodeError(t, rec.Body); code != tt.wantCode {
				t.Errorf("код: хотели %s, получили %s", tt.wantCode, code)
			}
		})
	}
}

func TestCreateAnalysis_ErrorAfterStream(t *testing.T) {
	router, _ := newTestRouter(t, &fakeRunner{
		chunks: []string{"partial"},
		err:    &service.AnalysisError{Err: errors.New("stream broken")},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, validFiles(), nil))
	resp := rec.Result()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("статус: поток уже начат, хотели 200, получили %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "partial" {
		t.Errorf("тело: %q", body)
	}
	if got := resp.Trailer.Get(TrailerStatus); got != apierrors.CodeAnalysisFailed {
		t.Errorf("%s: хотели %s, получили %q", TrailerStatus, apierrors.CodeAnalysisFailed, got)
	}
	if got := resp.Trailer.Get(TrailerHistoryID); got != "" {
		t.Errorf("%s должен быть пуст, получили %q", TrailerHistoryID, got)
	}
}

func TestCreateAnalysis_PersistenceAfterStream(t *testing.T) {
	router, _ := newTestRouter(t, &fakeRunner{
		chunks: []string{"report"},
		out:    &service.Outcome{Report: "report"},
		err:    &history.PersistenceError{Op: "write", Path: "/ro/history.json", Err: os.ErrPermission},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, validFiles(), nil))
	resp := rec.Result()

	if got := resp.Trailer.Get(TrailerStatus); got != apierrors.CodePersistenceError {
		t.Errorf("%s: хотели %s, получили %q", TrailerStatus, apierrors.CodePersistenceError, got)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	router, store := newTestRouter(t, &fakeRunner{})
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		if _, err := store.Append(ctx, history.NewEntry{
			ZipName:       fmt.Sprintf("p%d.zip", i),
			VideoName:     "bug.mp4",
			FilesAnalyzed: i,
			FullResult:    fmt.Sprintf("report %d", i),
		}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	// Список
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil))
	var list struct {
		Items []history.Entry `json:"items"`
		Total int             `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("декодирование списка: %v", err)
	}
	if list.Total != 2 || len(list.Items) != 2 || list.Items[0].ZipName != "p2.zip" {
		t.Errorf("список: %+v", list)
	}

	// Одна запись
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history/1", nil))
	var entry history.Entry
	if err := json.NewDecoder(rec.Body).Decode(&entry); err != nil {
		t.Fatalf("декодирование записи: %v", err)
	}
	if rec.Code != http.StatusOK || entry.FullResult != "report 1" {
		t.Errorf("запись 1: %d %+v", rec.Code, entry)
	}

	// Отсутствующая и некорректная
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history/99", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("отсутствующая запись: хотели 404, получили %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history/abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("некорректный id: хотели 400, получили %d", rec.Code)
	}

	// Очистка
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/history", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("очистка: хотели 204, получили %d", rec.Code)
	}
	if n := store.Count(ctx); n != 0 {
		t.Errorf("после очистки: %d записей", n)
	}
}

func TestListExtensions(t *testing.T) {
	router, _ := newTestRouter(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/extensions", nil))

	var resp map[string][]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("декодирование: %v", err)
	}
	if len(resp["default"]) != len(ingest.DefaultExtensions) {
		t.Errorf("default: %v", resp["default"])
	}
	if len(resp["all"]) != len(ingest.AllExtensions) {
		t.Errorf("all: %v", resp["all"])
	}
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t, &fakeRunner{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("live: хотели 200, получили %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("ready: хотели 200, получили %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthReady_Failures(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		handler *HealthHandler
	}{
		{"нет ключа", NewHealthHandler(dir, filepath.Join(dir, "h.json"), false)},
		{"нет директории", NewHealthHandler(filepath.Join(dir, "missing"), filepath.Join(dir, "h.json"), true)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != http.StatusServiceUnavailable {
				t.Errorf("хотели 503, получили %d", rec.Code)
			}
			var resp map[string]any
			_ = json.NewDecoder(rec.Body).Decode(&resp)
			if resp["status"] != statusFail {
				t.Errorf("status: %v", resp["status"])
			}
		})
	}
}
