// history.go — обработчики журнала анализов.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/codetrace/internal/api/errors"
	"github.com/bigkaa/codetrace/internal/history"
)

// HistoryHandler реализует endpoints /api/v1/history.
type HistoryHandler struct {
	store  history.Store
	logger *slog.Logger
}

// NewHistoryHandler создаёт обработчик журнала.
func NewHistoryHandler(store history.Store, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		store:  store,
		logger: logger.With(slog.String("component", "history_handler")),
	}
}

// historyList — ответ GET /api/v1/history.
type historyList struct {
	Items []history.Entry `json:"items"`
	Total int             `json:"total"`
}

// ListHistory обрабатывает GET /api/v1/history.
func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	items := h.store.Load(r.Context())
	writeJSON(w, http.StatusOK, historyList{Items: items, Total: len(items)})
}

// GetHistoryEntry обрабатывает GET /api/v1/history/{id}.
func (h *HistoryHandler) GetHistoryEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		apierrors.ValidationError(w, "Идентификатор записи должен быть положительным целым числом")
		return
	}

	entry, err := h.store.Get(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		apierrors.NotFound(w, "Запись истории "+strconv.Itoa(id)+" не найдена")
		return
	}
	if err != nil {
		apierrors.InternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// ClearHistory обрабатывает DELETE /api/v1/history.
func (h *HistoryHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		h.logger.Error("Ошибка очистки истории", slog.String("error", err.Error()))
		apierrors.Write(w, apierrors.CodePersistenceError, err.Error())
		return
	}
	h.logger.Info("История очищена")
	w.WriteHeader(http.StatusNoContent)
}
