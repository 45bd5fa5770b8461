// logging.go — журнал HTTP-запросов: request id в контексте и итог анализа.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-Id"

	// Трейлеры потокового отчёта POST /api/v1/analyses.
	analysisStatusHeader = "X-Analysis-Status"
	historyIDHeader      = "X-History-Id"
)

type requestIDKey struct{}

// RequestID возвращает идентификатор запроса из контекста ("" вне RequestLogger).
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// recorder запоминает статус, объём и число сбросов ответа.
type recorder struct {
	http.ResponseWriter
	status  int
	bytes   int64
	flushes int
}

func (rec *recorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += int64(n)
	return n, err
}

// FlushError считает фрагменты потокового отчёта, отправленные клиенту.
func (rec *recorder) FlushError() error {
	err := http.NewResponseController(rec.ResponseWriter).Flush()
	if err == nil {
		rec.flushes++
	}
	return err
}

// Unwrap нужен http.ResponseController для остальных операций.
func (rec *recorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// attrs собирает поля записи журнала; поля анализа есть только у
// ответов, выставивших трейлеры отчёта.
func (rec *recorder) attrs(r *http.Request, requestID string, elapsed time.Duration) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("request_id", requestID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", rec.status),
		slog.Duration("duration", elapsed),
		slog.Int64("bytes", rec.bytes),
		slog.String("remote_addr", r.RemoteAddr),
	}

	h := rec.Header()
	if status := h.Get(analysisStatusHeader); status != "" {
		attrs = append(attrs,
			slog.String("analysis_status", status),
			slog.Int("chunks", rec.flushes),
		)
	}
	if id := h.Get(historyIDHeader); id != "" {
		attrs = append(attrs, slog.String("history_id", id))
	}
	return attrs
}

// level: анализ, оборвавшийся после начала потока, — WARN при статусе 200.
func (rec *recorder) level() slog.Level {
	switch {
	case rec.status >= 500:
		return slog.LevelError
	case rec.status >= 400:
		return slog.LevelWarn
	}
	if status := rec.Header().Get(analysisStatusHeader); status != "" && status != "COMPLETE" {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// RequestLogger присваивает запросу X-Request-Id (входящий или новый uuid),
// кладёт его в контекст и пишет одну запись на запрос.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(requestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, requestID)
			r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID))

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			logger.LogAttrs(r.Context(), rec.level(), "HTTP запрос",
				rec.attrs(r, requestID, time.Since(start))...)
		})
	}
}
