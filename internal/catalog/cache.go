package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/udisondev/wrauth/internal/model"
)

// serverListCache — TTL-кэш списка активных серверов. Каждый GameServerAuth
// пакет сверяется с каталогом; без кэша это по одному запросу на пакет.
type serverListCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	fetch     func(context.Context) ([]model.ServerRecord, error)
	cached    []model.ServerRecord
	valid     bool
	fetchedAt time.Time
}

func newServerListCache(ttl time.Duration, fetch func(context.Context) ([]model.ServerRecord, error)) *serverListCache {
	return &serverListCache{ttl: ttl, fetch: fetch}
}

// get returns the cached list while it is fresh, refetching otherwise.
// A fetch error is returned as-is; the stale value is not served.
func (sc *serverListCache) get(ctx context.Context) ([]model.ServerRecord, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.valid && time.Since(sc.fetchedAt) < sc.ttl {
		return sc.cached, nil
	}

	list, err := sc.fetch(ctx)
	if err != nil {
		return nil, err
	}
	sc.cached = list
	sc.valid = true
	sc.fetchedAt = time.Now()
	return list, nil
}
