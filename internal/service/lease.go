// lease.go — владение удалённым ассетом с гарантированным однократным удалением.
package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bigkaa/codetrace/internal/domain/asset"
)

// Lease — захваченный удалённый ассет. Release удаляет ассет ровно один раз,
// сколько бы раз и откуда бы он ни вызывался.
type Lease struct {
	asset  *asset.Asset
	remote RemoteFiles
	logger *slog.Logger

	once     sync.Once
	released atomic.Bool
}

func newLease(a *asset.Asset, remote RemoteFiles, logger *slog.Logger) *Lease {
	return &Lease{
		asset:  a,
		remote: remote,
		logger: logger,
	}
}

// Asset возвращает захваченный ассет.
func (l *Lease) Asset() *asset.Asset {
	return l.asset
}

// Released возвращает true, если Release уже вызывался.
func (l *Lease) Released() bool {
	return l.released.Load()
}

// Release удаляет ассет в удалённом сервисе. Отмена ctx не прерывает
// удаление. Ошибка удаления логируется и не возвращается.
func (l *Lease) Release(ctx context.Context) {
	l.once.Do(func() {
		l.released.Store(true)

		err := l.remote.Delete(context.WithoutCancel(ctx), l.asset.Name)
		if err != nil {
			assetDeletesTotal.WithLabelValues("error").Inc()
			l.logger.Warn("Ошибка удаления ассета",
				slog.String("asset", l.asset.Name),
				slog.String("error", err.Error()),
			)
			return
		}

		assetDeletesTotal.WithLabelValues("ok").Inc()
		l.logger.Debug("Ассет удалён", slog.String("asset", l.asset.Name))
	})
}
