package catalog

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"depotdeck/internal/logging"
	"depotdeck/internal/metadata"
)

// DefaultPrefetchWorkers bounds concurrent metadata fetches.
const DefaultPrefetchWorkers = 5

// Prefetcher warms title metadata ahead of use. Results land in an
// append-only cache keyed by title id; failures are not cached.
type Prefetcher struct {
	source metadata.Source
	sem    *semaphore.Weighted
	group  singleflight.Group
	cache  sync.Map // title id -> metadata.Title
	logger *slog.Logger
}

var _ metadata.Source = (*Prefetcher)(nil)

// NewPrefetcher wraps source with a pool of at most workers concurrent fetches.
func NewPrefetcher(source metadata.Source, workers int, logger *slog.Logger) *Prefetcher {
	if workers <= 0 {
		workers = DefaultPrefetchWorkers
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Prefetcher{
		source: source,
		sem:    semaphore.NewWeighted(int64(workers)),
		logger: logger,
	}
}

// Title implements metadata.Source, serving from cache when warm.
func (p *Prefetcher) Title(ctx context.Context, titleID string) (metadata.Title, error) {
	if cached, ok := p.cache.Load(titleID); ok {
		return cached.(metadata.Title), nil
	}
	value, err, _ := p.group.Do(titleID, func() (any, error) {
		if cached, ok := p.cache.Load(titleID); ok {
			return cached, nil
		}
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer p.sem.Release(1)
		title, err := p.source.Title(ctx, titleID)
		if err != nil {
			return nil, err
		}
		actual, _ := p.cache.LoadOrStore(titleID, title)
		return actual, nil
	})
	if err != nil {
		return metadata.Title{}, err
	}
	return value.(metadata.Title), nil
}

// Cached returns a warmed entry without fetching.
func (p *Prefetcher) Cached(titleID string) (metadata.Title, bool) {
	value, ok := p.cache.Load(titleID)
	if !ok {
		return metadata.Title{}, false
	}
	return value.(metadata.Title), true
}

// Warm fetches every id in the background pool and blocks until all finish or
// ctx ends. Individual failures are logged and skipped; the count of warmed
// titles is returned.
func (p *Prefetcher) Warm(ctx context.Context, titleIDs []string) int {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		warmed int
	)
	for _, id := range titleIDs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := p.Title(ctx, id); err != nil {
				if ctx.Err() == nil {
					p.logger.Debug("metadata prefetch failed",
						logging.String("title_id", id),
						logging.Error(err),
					)
				}
				return
			}
			mu.Lock()
			warmed++
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return warmed
}
