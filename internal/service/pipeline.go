// pipeline.go — конвейер анализа: архив → видео → запрос → модель → история.
package service

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/codetrace/internal/history"
	"github.com/bigkaa/codetrace/internal/ingest"
	"github.com/bigkaa/codetrace/internal/prompt"
)

// Stage — этап конвейера.
type Stage string

const (
	StageParsing    Stage = "parsing"
	StageUploading  Stage = "uploading"
	StageAnalyzing  Stage = "analyzing"
	StageGenerating Stage = "generating"
	StageComplete   Stage = "complete"
)

// Observer получает уведомления о ходе анализа.
type Observer interface {
	// Stage вызывается при переходе к этапу
	Stage(stage Stage)
	// Chunk вызывается для каждого фрагмента отчёта в порядке поступления
	Chunk(text string)
}

// ObserverFuncs — Observer из функций; nil-функции пропускаются.
type ObserverFuncs struct {
	OnStage func(Stage)
	OnChunk func(string)
}

// Stage реализует Observer.
func (o ObserverFuncs) Stage(stage Stage) {
	if o.OnStage != nil {
		o.OnStage(stage)
	}
}

// Chunk реализует Observer.
func (o ObserverFuncs) Chunk(text string) {
	if o.OnChunk != nil {
		o.OnChunk(text)
	}
}

// Request — входные данные анализа.
type Request struct {
	// Archive — байты zip-архива
	Archive []byte
	// ArchiveName — имя архива (для истории)
	ArchiveName string
	// Video — поток видеозаписи
	Video io.Reader
	// VideoName — имя видеофайла (display name и история)
	VideoName string
	// Description — описание ошибки (опционально)
	Description string
	// Extensions — разрешённые расширения
	Extensions ingest.ExtensionSet
}

// Outcome — результат анализа.
type Outcome struct {
	// ID — идентификатор запуска (для логов)
	ID string
	// Ingest — результат разбора архива
	Ingest *ingest.Result
	// Report — полный текст отчёта
	Report string
	// Entry — запись истории (nil, если сохранить не удалось)
	Entry *history.Entry
}

// Pipeline — последовательный конвейер анализа.
type Pipeline struct {
	configured bool
	cache      *ingest.Cache
	uploader   *Uploader
	analyzer   *AnalysisService
	history    history.Store
	logger     *slog.Logger
}

// NewPipeline создаёт конвейер.
// configured — задан ли API-ключ удалённого сервиса.
func NewPipeline(
	configured bool,
	cache *ingest.Cache,
	uploader *Uploader,
	analyzer *AnalysisService,
	store history.Store,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		configured: configured,
		cache:      cache,
		uploader:   uploader,
		analyzer:   analyzer,
		history:    store,
		logger:     logger.With(slog.String("component", "pipeline")),
	}
}

// Configured возвращает true, если API-ключ задан.
func (p *Pipeline) Configured() bool {
	return p.configured
}

// Run выполняет анализ.
//
// Поток:
//  0. Нет API-ключа → ErrNotConfigured
//  1. parsing: разбор архива; пустой корпус → ErrNoMatchingFiles
//  2. uploading: загрузка видео → lease (удаляется на любом пути выхода)
//  3. analyzing: сборка запроса, вызов модели
//  4. generating: накопление фрагментов отчёта
//  5. запись в историю
//  6. complete
//
// Если отчёт получен, но запись в историю не удалась, возвращается Outcome
// без Entry вместе с *history.PersistenceError.
func (p *Pipeline) Run(ctx context.Context, req Request, obs Observer) (*Outcome, error) {
	if obs == nil {
		obs = ObserverFuncs{}
	}
	if !p.configured {
		return nil, ErrNotConfigured
	}

	id := uuid.New().String()
	logger := p.logger.With(slog.String("analysis_id", id))

	// 1. Разбор архива
	obs.Stage(StageParsing)
	res, err := p.cache.Ingest(req.Archive, req.Extensions)
	if err != nil {
		logger.Warn("Архив не разобран", slog.String("error", err.Error()))
		return nil, err
	}
	ingestFilesTotal.WithLabelValues("processed").Add(float64(res.FilesProcessed))
	ingestFilesTotal.WithLabelValues("skipped").Add(float64(res.FilesSkipped))

	logger.Info("Архив разобран",
		slog.String("archive", req.ArchiveName),
		slog.Int("files_processed", res.FilesProcessed),
		slog.Int("files_skipped", res.FilesSkipped),
	)
	if res.Empty() {
		return nil, ErrNoMatchingFiles
	}

	// 2. Загрузка видео
	obs.Stage(StageUploading)
	lease, err := p.uploader.Upload(ctx, req.Video, req.VideoName)
	if err != nil {
		logger.Warn("Видео не загружено", slog.String("error", err.Error()))
		return nil, err
	}
	defer lease.Release(ctx)

	// 3. Вызов модели
	obs.Stage(StageAnalyzing)
	chunks, err := p.analyzer.Analyze(ctx, lease, prompt.Assemble(res.Corpus, req.Description))
	if err != nil {
		return nil, err
	}

	// 4. Накопление отчёта
	obs.Stage(StageGenerating)
	var report strings.Builder
	for text, err := range chunks {
		if err != nil {
			return nil, err
		}
		report.WriteString(text)
		obs.Chunk(text)
	}

	out := &Outcome{
		ID:     id,
		Ingest: res,
		Report: report.String(),
	}

	// 5. История
	entry, err := p.history.Append(ctx, history.NewEntry{
		ZipName:       req.ArchiveName,
		VideoName:     req.VideoName,
		FilesAnalyzed: res.FilesProcessed,
		FullResult:    out.Report,
	})
	if err != nil {
		logger.Error("Отчёт не сохранён в историю", slog.String("error", err.Error()))
		return out, err
	}
	out.Entry = entry

	obs.Stage(StageComplete)
	logger.Info("Анализ выполнен",
		slog.Int("history_id", entry.ID),
		slog.Int("report_len", len(out.Report)),
	)
	return out, nil
}
