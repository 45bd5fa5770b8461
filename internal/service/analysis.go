// analysis.go — вызов модели с загруженным видео и потоковым ответом.
package service

import (
	"context"
	"iter"
	"log/slog"
	"sync/atomic"

	"github.com/bigkaa/codetrace/internal/gemini"
	"github.com/bigkaa/codetrace/internal/prompt"
)

// Generator — потоковая генерация ответа модели.
type Generator interface {
	StreamGenerateContent(ctx context.Context, model string, req *gemini.GenerateContentRequest) (*gemini.Stream, error)
}

// AnalysisService — вызов модели и гарантированное удаление ассета.
type AnalysisService struct {
	gen    Generator
	model  string
	logger *slog.Logger
}

// NewAnalysisService создаёт сервис анализа.
// model — имя модели (например, gemini-2.5-flash).
func NewAnalysisService(gen Generator, model string, logger *slog.Logger) *AnalysisService {
	return &AnalysisService{
		gen:    gen,
		model:  model,
		logger: logger.With(slog.String("component", "analysis_service")),
	}
}

// Model возвращает имя модели.
func (s *AnalysisService) Model() string {
	return s.model
}

// Analyze вызывает модель с видео из lease и текстом запроса.
//
// Если вызов отклонён, ассет удаляется сразу и возвращается *AnalysisError.
// Иначе возвращается ленивая однопроходная последовательность текстовых
// фрагментов. Ассет удаляется до выхода из range: по завершении потока,
// при ошибке в потоке (выдаётся *AnalysisError) и при досрочном выходе.
// Повторный range выдаёт ErrStreamConsumed.
func (s *AnalysisService) Analyze(ctx context.Context, lease *Lease, promptText string) (iter.Seq2[string, error], error) {
	a := lease.Asset()

	req := &gemini.GenerateContentRequest{
		SystemInstruction: &gemini.Content{
			Parts: []gemini.Part{{Text: prompt.SystemInstruction}},
		},
		Contents: []gemini.Content{{
			Role: "user",
			Parts: []gemini.Part{
				{FileData: &gemini.FileData{MimeType: a.MimeType, FileURI: a.URI}},
				{Text: promptText},
			},
		}},
	}

	stream, err := s.gen.StreamGenerateContent(ctx, s.model, req)
	if err != nil {
		lease.Release(ctx)
		analysesTotal.WithLabelValues("rejected").Inc()
		s.logger.Error("Вызов модели отклонён",
			slog.String("asset", a.Name),
			slog.String("model", s.model),
			slog.String("error", err.Error()),
		)
		return nil, &AnalysisError{Err: err}
	}

	var consumed atomic.Bool

	return func(yield func(string, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield("", ErrStreamConsumed)
			return
		}

		defer lease.Release(ctx)
		defer stream.Close()

		chunks := 0
		for text, err := range stream.Chunks() {
			if err != nil {
				// Ассет удаляется до того, как ошибка дойдёт до потребителя
				stream.Close()
				lease.Release(ctx)
				analysesTotal.WithLabelValues("failed").Inc()
				s.logger.Error("Поток ответа прерван",
					slog.String("asset", a.Name),
					slog.Int("chunks", chunks),
					slog.String("error", err.Error()),
				)
				yield("", &AnalysisError{Err: err})
				return
			}

			chunks++
			if !yield(text, nil) {
				analysesTotal.WithLabelValues("stopped").Inc()
				return
			}
		}

		analysesTotal.WithLabelValues("ok").Inc()
		s.logger.Info("Анализ завершён",
			slog.String("asset", a.Name),
			slog.Int("chunks", chunks),
		)
	}, nil
}
