// handler.go — APIHandler собирает доменные handlers и монтирует маршруты.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// APIHandler — единая точка монтирования всех endpoints.
type APIHandler struct {
	analyses   *AnalysesHandler
	history    *HistoryHandler
	extensions *ExtensionsHandler
	health     *HealthHandler
}

// NewAPIHandler создаёт единый handler для всех endpoints.
func NewAPIHandler(
	analyses *AnalysesHandler,
	history *HistoryHandler,
	extensions *ExtensionsHandler,
	health *HealthHandler,
) *APIHandler {
	return &APIHandler{
		analyses:   analyses,
		history:    history,
		extensions: extensions,
		health:     health,
	}
}

// Mount регистрирует маршруты в роутере.
func (h *APIHandler) Mount(r chi.Router) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/analyses", h.analyses.CreateAnalysis)
		r.Get("/history", h.history.ListHistory)
		r.Delete("/history", h.history.ClearHistory)
		r.Get("/history/{id}", h.history.GetHistoryEntry)
		r.Get("/extensions", h.extensions.ListExtensions)
	})
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
