// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/codetrace/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// serviceName — имя сервиса в ответах health endpoints.
const serviceName = "codetrace"

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// scratchDir — директория временных файлов видео
	scratchDir string
	// historyDir — директория файла истории
	historyDir string
	// configured — задан ли API-ключ
	configured bool
}

// NewHealthHandler создаёт обработчик health endpoints.
// historyPath — путь к файлу истории (JSON или SQLite).
func NewHealthHandler(scratchDir, historyPath string, configured bool) *HealthHandler {
	return &HealthHandler{
		version:    config.Version,
		scratchDir: scratchDir,
		historyDir: filepath.Dir(historyPath),
		configured: configured,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: директорию временных файлов, директорию истории, наличие API-ключа.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	scratchCheck := checkWritable(h.scratchDir, "Директория временных файлов")
	historyCheck := checkWritable(h.historyDir, "Директория истории")
	for _, c := range []map[string]any{scratchCheck, historyCheck} {
		if c["status"] != "ok" {
			overallStatus = statusFail
			httpStatus = http.StatusServiceUnavailable
		}
	}

	credentialCheck := map[string]any{"status": "ok"}
	if !h.configured {
		credentialCheck = map[string]any{
			"status":  statusFail,
			"message": "GOOGLE_API_KEY не задан",
		}
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
		"checks": map[string]any{
			"scratch":    scratchCheck,
			"history":    historyCheck,
			"credential": credentialCheck,
		},
	})
}

// checkWritable проверяет доступность директории на запись.
func checkWritable(dir, title string) map[string]any {
	if dir == "" {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	f, err := os.CreateTemp(dir, ".health_check-*")
	if err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": title + " недоступна для записи: " + err.Error(),
		}
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	return map[string]any{
		"status": "ok",
	}
}
