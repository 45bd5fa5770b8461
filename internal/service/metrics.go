// metrics.go — Prometheus метрики сервисного слоя.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ingestFilesTotal — файлы архивов по результату (processed/skipped).
	ingestFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ct_ingest_files_total",
		Help: "Общее количество записей архивов по результату обработки",
	}, []string{"result"})

	// uploadsTotal — загрузки видео по результату.
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ct_uploads_total",
		Help: "Общее количество загрузок видео по результату",
	}, []string{"result"})

	// uploadPollAttempts — число опросов состояния до конечного состояния.
	uploadPollAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ct_upload_poll_attempts",
		Help:    "Количество опросов состояния видео за одну загрузку",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})

	// analysesTotal — вызовы модели по результату.
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ct_analyses_total",
		Help: "Общее количество анализов по результату",
	}, []string{"result"})

	// assetDeletesTotal — удаления ассетов по результату.
	assetDeletesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ct_asset_deletes_total",
		Help: "Общее количество удалений ассетов по результату",
	}, []string{"result"})
)
