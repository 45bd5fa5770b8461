// Пакет service — бизнес-логика CodeTrace: загрузка видео в удалённый
// сервис, вызов модели и конвейер анализа.
// errors.go — ошибки сервисного слоя.
package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConfigured — API-ключ удалённого сервиса не задан.
	ErrNotConfigured = errors.New("API-ключ не настроен")
	// ErrNoMatchingFiles — в архиве нет файлов, прошедших фильтры.
	ErrNoMatchingFiles = errors.New("в архиве нет файлов с выбранными расширениями")
	// ErrStreamConsumed — повторная итерация однопроходного потока ответа.
	ErrStreamConsumed = errors.New("поток ответа уже прочитан")
)

// UploadError — видео не удалось загрузить или обработать (UploadError).
type UploadError struct {
	// State — состояние ассета в момент ошибки (как его вернул сервис)
	State string
	// Err — исходная ошибка (nil, если сервис сообщил FAILED)
	Err error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("UPLOAD_FAILED: загрузка видео завершилась в состоянии %s: %v", e.State, e.Err)
	}
	return fmt.Sprintf("UPLOAD_FAILED: обработка видео завершилась в состоянии %s", e.State)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// UploadTimeoutError — видео не стало готовым за отведённое время
// или число попыток опроса.
type UploadTimeoutError struct {
	// State — последнее наблюдённое состояние
	State string
	// Attempts — выполненные попытки опроса
	Attempts int
	// Elapsed — время ожидания
	Elapsed time.Duration
}

func (e *UploadTimeoutError) Error() string {
	return fmt.Sprintf("UPLOAD_TIMEOUT: видео не готово после %d попыток опроса (%s), состояние %s",
		e.Attempts, e.Elapsed.Round(time.Millisecond), e.State)
}

// AnalysisError — вызов модели отклонён или поток ответа прерван.
// Возвращается после удаления ассета.
type AnalysisError struct {
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("ANALYSIS_FAILED: ошибка анализа: %v", e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}
