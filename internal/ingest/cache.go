// cache.go — LRU-кэш результатов Ingest с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
// Ingest детерминирован, поэтому повторная отправка того же архива
// с тем же набором расширений возвращает готовый Result.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ct_ingest_cache_hits_total",
		Help: "Общее количество попаданий в кэш результатов разбора архивов.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ct_ingest_cache_misses_total",
		Help: "Общее количество промахов кэша результатов разбора архивов.",
	})
)

// Cache — кэш результатов Ingest для фиксированного набора правил.
// nil-кэш (размер 0) всегда выполняет разбор заново.
type Cache struct {
	rules Rules
	lru   *expirable.LRU[string, *Result]
}

// NewCache создаёт кэш с указанным максимальным размером и TTL.
// При maxSize <= 0 кэширование отключено.
func NewCache(rules Rules, maxSize int, ttl time.Duration) *Cache {
	c := &Cache{rules: rules}
	if maxSize > 0 {
		c.lru = expirable.NewLRU[string, *Result](maxSize, nil, ttl)
	}
	return c
}

// Rules возвращает правила, с которыми работает кэш.
func (c *Cache) Rules() Rules {
	return c.rules
}

// Ingest возвращает закэшированный Result или выполняет разбор архива.
// Ошибки разбора не кэшируются.
func (c *Cache) Ingest(archive []byte, allowed ExtensionSet) (*Result, error) {
	if c.lru == nil {
		return Ingest(archive, allowed, c.rules)
	}

	key := cacheKey(archive, allowed)
	if res, ok := c.lru.Get(key); ok {
		cacheHitsTotal.Inc()
		return res, nil
	}
	cacheMissesTotal.Inc()

	res, err := Ingest(archive, allowed, c.rules)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, res)
	return res, nil
}

// Len возвращает количество записей в кэше.
func (c *Cache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

// cacheKey — SHA-256 архива + отсортированный набор расширений.
func cacheKey(archive []byte, allowed ExtensionSet) string {
	sum := sha256.Sum256(archive)
	return hex.EncodeToString(sum[:]) + "|" + strings.Join(allowed.Sorted(), ",")
}
