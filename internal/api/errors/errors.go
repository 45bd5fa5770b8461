// Пакет errors — ответы с ошибками в едином формате CodeTrace.
// Формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // конфликт имени со stdlib

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок HTTP API.
const (
	CodeValidationError  = "VALIDATION_ERROR"
	CodeIngestionError   = "INGESTION_ERROR"
	CodeNoMatchingFiles  = "NO_MATCHING_FILES"
	CodeAPINotConfigured = "API_NOT_CONFIGURED"
	CodeUploadFailed     = "UPLOAD_FAILED"
	CodeUploadTimeout    = "UPLOAD_TIMEOUT"
	CodeAnalysisFailed   = "ANALYSIS_FAILED"
	CodePersistenceError = "PERSISTENCE_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeInternalError    = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// StatusOf возвращает HTTP-статус для кода ошибки.
func StatusOf(code string) int {
	switch code {
	case CodeValidationError:
		return http.StatusBadRequest
	case CodeIngestionError, CodeNoMatchingFiles:
		return http.StatusUnprocessableEntity
	case CodeAPINotConfigured:
		return http.StatusServiceUnavailable
	case CodeUploadFailed, CodeAnalysisFailed:
		return http.StatusBadGateway
	case CodeUploadTimeout:
		return http.StatusGatewayTimeout
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Write записывает ошибку с кодом, статус берётся из StatusOf.
func Write(w http.ResponseWriter, code, message string) {
	WriteError(w, StatusOf(code), code, message)
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
