// extensions.go — GET /api/v1/extensions: доступные расширения файлов.
package handlers

import (
	"net/http"

	"github.com/bigkaa/codetrace/internal/ingest"
)

// ExtensionsHandler отдаёт наборы расширений.
type ExtensionsHandler struct {
	defaults []string
}

// NewExtensionsHandler создаёт обработчик; defaults — набор по умолчанию.
func NewExtensionsHandler(defaults ingest.ExtensionSet) *ExtensionsHandler {
	return &ExtensionsHandler{defaults: defaults.Sorted()}
}

// ListExtensions обрабатывает GET /api/v1/extensions.
func (h *ExtensionsHandler) ListExtensions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"default": h.defaults,
		"all":     ingest.AllExtensions,
	})
}
