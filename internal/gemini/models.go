// Пакет gemini — HTTP-клиент к Gemini REST API (v1beta).
// models.go — модели запросов и ответов API.
package gemini

import (
	"fmt"
	"strings"
)

// File — загруженный файл (ресурс files/*).
type File struct {
	Name        string     `json:"name"`
	DisplayName string     `json:"displayName,omitempty"`
	MimeType    string     `json:"mimeType,omitempty"`
	SizeBytes   string     `json:"sizeBytes,omitempty"`
	CreateTime  string     `json:"createTime,omitempty"`
	URI         string     `json:"uri,omitempty"`
	State       string     `json:"state,omitempty"`
	Error       *APIStatus `json:"error,omitempty"`
}

// fileEnvelope — обёртка {"file": {...}} ответа upload.
type fileEnvelope struct {
	File File `json:"file"`
}

// uploadStartRequest — тело запроса начала resumable upload.
type uploadStartRequest struct {
	File struct {
		DisplayName string `json:"display_name"`
	} `json:"file"`
}

// Part — часть содержимого сообщения: текст или ссылка на файл.
type Part struct {
	Text     string    `json:"text,omitempty"`
	FileData *FileData `json:"fileData,omitempty"`
}

// FileData — ссылка на загруженный файл.
type FileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

// Content — сообщение диалога.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerateContentRequest — тело запроса streamGenerateContent.
type GenerateContentRequest struct {
	SystemInstruction *Content  `json:"systemInstruction,omitempty"`
	Contents          []Content `json:"contents"`
}

// Candidate — вариант ответа модели.
type Candidate struct {
	Content      *Content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

// GenerateContentResponse — один фрагмент потокового ответа.
type GenerateContentResponse struct {
	Candidates     []Candidate     `json:"candidates,omitempty"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
	Error          *APIStatus      `json:"error,omitempty"`
}

// PromptFeedback — причина блокировки запроса (если есть).
type PromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

// BlockedError — модель отклонила запрос (promptFeedback.blockReason).
type BlockedError struct {
	// Reason — причина блокировки (SAFETY, OTHER, ...)
	Reason string
}

func (e *BlockedError) Error() string {
	return "запрос заблокирован моделью: " + e.Reason
}

// Text возвращает текст первого кандидата (объединение текстовых частей).
// Фрагменты без текста (только finishReason) дают пустую строку.
func (r *GenerateContentResponse) Text() string {
	if len(r.Candidates) == 0 || r.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// APIStatus — тело ошибки Google API.
type APIStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// errorEnvelope — обёртка {"error": {...}}.
type errorEnvelope struct {
	Error *APIStatus `json:"error"`
}

// APIError — ошибка, возвращённая Gemini API.
type APIError struct {
	// StatusCode — HTTP-статус ответа (0 для ошибки внутри потока)
	StatusCode int
	// Status — символьный код (INVALID_ARGUMENT, RESOURCE_EXHAUSTED, ...)
	Status string
	// Message — описание от сервиса
	Message string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("Gemini API вернул ошибку %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("Gemini API вернул ошибку %d: %s", e.StatusCode, e.Message)
}
