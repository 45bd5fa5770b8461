// analyses.go — POST /api/v1/analyses: запуск анализа с потоковой выдачей отчёта.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/codetrace/internal/api/errors"
	"github.com/bigkaa/codetrace/internal/api/middleware"
	"github.com/bigkaa/codetrace/internal/history"
	"github.com/bigkaa/codetrace/internal/ingest"
	"github.com/bigkaa/codetrace/internal/service"
)

// Трейлеры потокового ответа.
const (
	TrailerStatus    = "X-Analysis-Status"
	TrailerHistoryID = "X-History-Id"
)

// StatusComplete — значение X-Analysis-Status при успешном анализе.
const StatusComplete = "COMPLETE"

// multipartMemory — часть формы, хранимая в памяти; остальное на диске.
const multipartMemory = 32 << 20

// Runner — конвейер анализа.
type Runner interface {
	Run(ctx context.Context, req service.Request, obs service.Observer) (*service.Outcome, error)
}

// AnalysesHandler обрабатывает запуск анализа.
type AnalysesHandler struct {
	runner         Runner
	defaults       ingest.ExtensionSet
	maxArchiveSize int64
	maxVideoSize   int64
	logger         *slog.Logger
}

// NewAnalysesHandler создаёт обработчик анализа.
// defaults — расширения, используемые при пустом поле extensions.
func NewAnalysesHandler(
	runner Runner,
	defaults ingest.ExtensionSet,
	maxArchiveSize, maxVideoSize int64,
	logger *slog.Logger,
) *AnalysesHandler {
	return &AnalysesHandler{
		runner:         runner,
		defaults:       defaults,
		maxArchiveSize: maxArchiveSize,
		maxVideoSize:   maxVideoSize,
		logger:         logger.With(slog.String("component", "analyses_handler")),
	}
}

// CreateAnalysis обрабатывает POST /api/v1/analyses.
// Multipart form: archive (zip, обязательно), video (обязательно),
// description (опционально), extensions (опционально, через запятую).
//
// До первого фрагмента отчёта ошибки возвращаются JSON-ответом.
// После начала потока итог передаётся трейлером X-Analysis-Status.
func (h *AnalysesHandler) CreateAnalysis(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxArchiveSize+h.maxVideoSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	archiveFile, archiveHeader, err := r.FormFile("archive")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'archive' обязательно")
		return
	}
	defer archiveFile.Close()

	if archiveHeader.Size > h.maxArchiveSize {
		apierrors.ValidationError(w, fmt.Sprintf("Архив превышает %d байт", h.maxArchiveSize))
		return
	}
	archive, err := io.ReadAll(io.LimitReader(archiveFile, h.maxArchiveSize+1))
	if err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка чтения архива: %s", err.Error()))
		return
	}
	if int64(len(archive)) > h.maxArchiveSize {
		apierrors.ValidationError(w, fmt.Sprintf("Архив превышает %d байт", h.maxArchiveSize))
		return
	}

	videoFile, videoHeader, err := r.FormFile("video")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'video' обязательно")
		return
	}
	defer videoFile.Close()

	if videoHeader.Size > h.maxVideoSize {
		apierrors.ValidationError(w, fmt.Sprintf("Видео превышает %d байт", h.maxVideoSize))
		return
	}

	extensions := ingest.ParseExtensionList(r.FormValue("extensions"))
	if len(extensions) == 0 {
		extensions = h.defaults
	}

	logger := h.logger.With(slog.String("request_id", middleware.RequestID(r.Context())))
	stream := newReportStream(w)
	obs := service.ObserverFuncs{
		OnStage: func(stage service.Stage) {
			logger.Debug("Этап анализа", slog.String("stage", string(stage)))
		},
		OnChunk: stream.write,
	}

	out, runErr := h.runner.Run(r.Context(), service.Request{
		Archive:     archive,
		ArchiveName: archiveHeader.Filename,
		Video:       videoFile,
		VideoName:   videoHeader.Filename,
		Description: r.FormValue("description"),
		Extensions:  extensions,
	}, obs)

	if runErr != nil && !stream.started {
		code, msg := classify(runErr)
		if code == apierrors.CodeInternalError {
			logger.Error("Анализ завершился внутренней ошибкой", slog.String("error", runErr.Error()))
		}
		apierrors.Write(w, code, msg)
		return
	}

	// Пустой отчёт: поток ещё не начат
	stream.start()

	if runErr != nil {
		code, _ := classify(runErr)
		w.Header().Set(TrailerStatus, code)
		return
	}

	w.Header().Set(TrailerStatus, StatusComplete)
	if out.Entry != nil {
		w.Header().Set(TrailerHistoryID, strconv.Itoa(out.Entry.ID))
	}
}

// reportStream — потоковая запись отчёта с flush после каждого фрагмента.
type reportStream struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
	broken  bool
}

func newReportStream(w http.ResponseWriter) *reportStream {
	return &reportStream{w: w, rc: http.NewResponseController(w)}
}

// start отправляет заголовки ответа (однократно).
func (s *reportStream) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Trailer", TrailerStatus+", "+TrailerHistoryID)
	s.w.WriteHeader(http.StatusOK)
}

// write отправляет фрагмент клиенту. Ошибки записи (клиент отключился)
// не прерывают конвейер: отчёт всё равно попадёт в историю.
func (s *reportStream) write(text string) {
	s.start()
	if s.broken {
		return
	}
	if _, err := io.WriteString(s.w, text); err != nil {
		s.broken = true
		return
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.broken = true
	}
}

// classify сопоставляет ошибку конвейера коду API и сообщению.
func classify(err error) (code, message string) {
	var (
		ingestErr  *ingest.Error
		uploadErr  *service.UploadError
		timeoutErr *service.UploadTimeoutError
		analysis   *service.AnalysisError
		persist    *history.PersistenceError
	)
	switch {
	case errors.Is(err, service.ErrNotConfigured):
		return apierrors.CodeAPINotConfigured, "API-ключ не настроен: задайте GOOGLE_API_KEY"
	case errors.Is(err, service.ErrNoMatchingFiles):
		return apierrors.CodeNoMatchingFiles, err.Error()
	case errors.As(err, &ingestErr):
		return apierrors.CodeIngestionError, err.Error()
	case errors.As(err, &timeoutErr):
		return apierrors.CodeUploadTimeout, err.Error()
	case errors.As(err, &uploadErr):
		return apierrors.CodeUploadFailed, err.Error()
	case errors.As(err, &analysis):
		return apierrors.CodeAnalysisFailed, err.Error()
	case errors.As(err, &persist):
		return apierrors.CodePersistenceError, err.Error()
	default:
		return apierrors.CodeInternalError, "Внутренняя ошибка: " + err.Error()
	}
}
