// upload.go — загрузка видео в удалённый сервис и ожидание готовности.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/bigkaa/codetrace/internal/domain/asset"
	"github.com/bigkaa/codetrace/internal/storage/scratch"
)

// defaultPollInterval — интервал опроса состояния по умолчанию.
const defaultPollInterval = 2 * time.Second

// defaultVideoMimeType — MIME-тип, если по расширению определить не удалось.
const defaultVideoMimeType = "video/mp4"

// RemoteFiles — файловое хранилище удалённого AI-сервиса.
type RemoteFiles interface {
	// Create загружает локальный файл и возвращает снимок ассета
	Create(ctx context.Context, filePath, displayName, mimeType string) (*asset.Asset, error)
	// Get возвращает актуальное состояние ассета
	Get(ctx context.Context, name string) (*asset.Asset, error)
	// Delete удаляет ассет
	Delete(ctx context.Context, name string) error
}

// UploadOptions — параметры ожидания готовности видео.
type UploadOptions struct {
	// PollInterval — пауза между опросами (0 — 2s)
	PollInterval time.Duration
	// MaxAttempts — предельное число опросов (0 — без ограничения)
	MaxAttempts int
	// Timeout — предельное время ожидания (0 — без ограничения)
	Timeout time.Duration
}

// Uploader — загрузка видео: временный файл, submit, опрос состояния.
type Uploader struct {
	remote  RemoteFiles
	scratch *scratch.Store
	opts    UploadOptions
	logger  *slog.Logger
}

// NewUploader создаёт сервис загрузки видео.
func NewUploader(remote RemoteFiles, store *scratch.Store, opts UploadOptions, logger *slog.Logger) *Uploader {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Uploader{
		remote:  remote,
		scratch: store,
		opts:    opts,
		logger:  logger.With(slog.String("component", "uploader")),
	}
}

// Upload загружает видео и ждёт, пока оно станет ACTIVE.
//
// Поток:
//  1. Запись байтов во временный файл (удаляется на любом пути выхода)
//  2. Submit (RemoteFiles.Create)
//  3. Опрос состояния с интервалом PollInterval, пока ассет не в конечном состоянии
//  4. ACTIVE → Lease; иначе ассет удаляется и возвращается ошибка
//
// Ошибки: *UploadError (FAILED, ошибка submit или опроса),
// *UploadTimeoutError (исчерпаны попытки или время), ошибка ctx.
func (u *Uploader) Upload(ctx context.Context, video io.Reader, displayName string) (*Lease, error) {
	// 1. Временный файл
	tmp, err := u.scratch.Save(video, displayName)
	if err != nil {
		uploadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("сохранение видео во временный файл: %w", err)
	}
	defer func() {
		if rmErr := u.scratch.Remove(tmp); rmErr != nil {
			u.logger.Warn("Ошибка удаления временного файла",
				slog.String("path", tmp.Path),
				slog.String("error", rmErr.Error()),
			)
		}
	}()

	mimeType := videoMimeType(displayName)
	a := asset.New(displayName, mimeType)

	u.logger.Info("Загрузка видео",
		slog.String("display_name", displayName),
		slog.Int64("size", tmp.Size),
		slog.String("sha256", tmp.Checksum),
	)

	// 2. Submit
	snapshot, err := u.remote.Create(ctx, tmp.Path, displayName, mimeType)
	if err != nil {
		a.Fail()
		uploadsTotal.WithLabelValues("failed").Inc()
		return nil, &UploadError{State: a.RawState, Err: err}
	}
	if err := a.Apply(snapshot); err != nil {
		// Ассет создан, но его состояние недопустимо: удаляем
		if snapshot.Name != "" {
			a.Name = snapshot.Name
			newLease(a, u.remote, u.logger).Release(ctx)
		}
		uploadsTotal.WithLabelValues("failed").Inc()
		return nil, &UploadError{State: snapshot.RawState, Err: err}
	}

	// С этого момента ассет существует удалённо и принадлежит lease
	lease := newLease(a, u.remote, u.logger)

	// 3. Опрос
	attempts, err := u.waitReady(ctx, a)
	uploadPollAttempts.Observe(float64(attempts))
	if err != nil {
		lease.Release(ctx)
		uploadsTotal.WithLabelValues(uploadResult(err)).Inc()
		return nil, err
	}

	// 4. Конечное состояние
	if a.State != asset.StateActive {
		lease.Release(ctx)
		uploadsTotal.WithLabelValues("failed").Inc()
		u.logger.Warn("Обработка видео завершилась ошибкой",
			slog.String("asset", a.Name),
			slog.String("state", a.RawState),
		)
		return nil, &UploadError{State: a.RawState}
	}

	uploadsTotal.WithLabelValues("active").Inc()
	u.logger.Info("Видео готово",
		slog.String("asset", a.Name),
		slog.Int("poll_attempts", attempts),
	)
	return lease, nil
}

// waitReady опрашивает состояние ассета, пока оно не станет конечным.
// Возвращает число выполненных опросов.
func (u *Uploader) waitReady(ctx context.Context, a *asset.Asset) (int, error) {
	start := time.Now()

	var deadline <-chan time.Time
	if u.opts.Timeout > 0 {
		timer := time.NewTimer(u.opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	// Интервал отсчитывается от завершения предыдущего Get.
	poll := time.NewTimer(u.opts.PollInterval)
	defer poll.Stop()

	attempts := 0
	for !a.State.IsTerminal() {
		if u.opts.MaxAttempts > 0 && attempts >= u.opts.MaxAttempts {
			return attempts, &UploadTimeoutError{State: a.RawState, Attempts: attempts, Elapsed: time.Since(start)}
		}

		select {
		case <-ctx.Done():
			return attempts, fmt.Errorf("ожидание готовности видео прервано: %w", ctx.Err())
		case <-deadline:
			return attempts, &UploadTimeoutError{State: a.RawState, Attempts: attempts, Elapsed: time.Since(start)}
		case <-poll.C:
		}

		attempts++
		snapshot, err := u.remote.Get(ctx, a.Name)
		if err != nil {
			return attempts, &UploadError{State: a.RawState, Err: fmt.Errorf("обновление состояния: %w", err)}
		}
		poll.Reset(u.opts.PollInterval)
		if err := a.Apply(snapshot); err != nil {
			return attempts, &UploadError{State: snapshot.RawState, Err: err}
		}

		u.logger.Debug("Состояние видео",
			slog.String("asset", a.Name),
			slog.String("state", a.RawState),
			slog.Int("attempt", attempts),
		)
	}
	return attempts, nil
}

// uploadResult возвращает метку метрики для ошибки ожидания.
func uploadResult(err error) string {
	switch err.(type) {
	case *UploadTimeoutError:
		return "timeout"
	case *UploadError:
		return "failed"
	default:
		return "canceled"
	}
}

// videoTypes — MIME-типы поддерживаемых форматов видео.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
}

// videoMimeType определяет MIME-тип видео по расширению имени файла.
func videoMimeType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := videoTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
	}
	return defaultVideoMimeType
}
