// Пакет asset — модель удалённого ассета (загруженной видеозаписи)
// и конечный автомат его жизненного цикла.
//
//	UPLOADING  → PROCESSING | ACTIVE | FAILED
//	PROCESSING → PROCESSING | ACTIVE | FAILED
//	ACTIVE, FAILED — конечные состояния
//
// Asset не потокобезопасен: им владеет один вызов Upload.
package asset

import (
	"fmt"
	"strings"
)

// State — состояние удалённого ассета.
type State string

const (
	// StateUploading — байты ещё передаются в удалённый сервис
	StateUploading State = "UPLOADING"
	// StateProcessing — сервис обрабатывает файл
	StateProcessing State = "PROCESSING"
	// StateActive — файл готов к использованию в запросах к модели
	StateActive State = "ACTIVE"
	// StateFailed — обработка завершилась ошибкой
	StateFailed State = "FAILED"
)

// validTransitions — матрица допустимых переходов.
// UPLOADING → ACTIVE допускается: сервис может вернуть готовый файл сразу.
var validTransitions = map[State]map[State]bool{
	StateUploading:  {StateProcessing: true, StateActive: true, StateFailed: true},
	StateProcessing: {StateProcessing: true, StateActive: true, StateFailed: true},
	StateActive:     {},
	StateFailed:     {},
}

// IsTerminal возвращает true для конечных состояний.
func (s State) IsTerminal() bool {
	return s == StateActive || s == StateFailed
}

// ParseState преобразует имя состояния удалённого сервиса в State.
// Неизвестные имена (STATE_UNSPECIFIED и т.п.) считаются FAILED.
func ParseState(raw string) State {
	switch State(strings.ToUpper(strings.TrimSpace(raw))) {
	case StateUploading:
		return StateUploading
	case StateProcessing:
		return StateProcessing
	case StateActive:
		return StateActive
	default:
		return StateFailed
	}
}

// Asset — дескриптор загруженного файла в удалённом сервисе.
type Asset struct {
	// Name — идентификатор ресурса в удалённом сервисе (например, files/abc123)
	Name string
	// DisplayName — отображаемое имя (имя исходного файла)
	DisplayName string
	// MimeType — MIME-тип загруженного файла
	MimeType string
	// URI — ссылка на файл для запросов к модели
	URI string
	// State — текущее состояние жизненного цикла
	State State
	// RawState — имя состояния в том виде, в каком его вернул сервис
	RawState string
}

// New создаёт ассет в состоянии UPLOADING.
func New(displayName, mimeType string) *Asset {
	return &Asset{
		DisplayName: displayName,
		MimeType:    mimeType,
		State:       StateUploading,
		RawState:    string(StateUploading),
	}
}

// CanTransitionTo проверяет, допустим ли переход в указанное состояние.
func (a *Asset) CanTransitionTo(target State) bool {
	return validTransitions[a.State][target]
}

// Apply переносит в ассет снимок, полученный от удалённого сервиса
// (ответ на submit или refresh), и выполняет переход состояния.
// Пустые поля снимка не затирают уже известные значения.
func (a *Asset) Apply(snapshot *Asset) error {
	target := snapshot.State
	if !a.CanTransitionTo(target) {
		return &TransitionError{From: a.State, To: target}
	}

	if snapshot.Name != "" {
		a.Name = snapshot.Name
	}
	if snapshot.DisplayName != "" {
		a.DisplayName = snapshot.DisplayName
	}
	if snapshot.MimeType != "" {
		a.MimeType = snapshot.MimeType
	}
	if snapshot.URI != "" {
		a.URI = snapshot.URI
	}
	a.State = target
	a.RawState = snapshot.RawState
	if a.RawState == "" {
		a.RawState = string(target)
	}
	return nil
}

// Fail переводит ассет в FAILED (ошибка submit).
func (a *Asset) Fail() {
	a.State = StateFailed
	a.RawState = string(StateFailed)
}

// TransitionError — недопустимый переход состояния ассета.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("INVALID_TRANSITION: переход %s → %s недопустим", e.From, e.To)
}
