// Package holes maintains a time-bounded cache of a project's hole set.
package holes

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wintech-vn/drilltrack/internal/model"
)

// Lister fetches the full hole set of a project from the remote API.
type Lister interface {
	GetHoles(projectID string) ([]model.Hole, error)
}

// Directory caches the hole set of one project for a fixed TTL. The cache is
// replaced wholesale on a successful fetch; a failed fetch leaves the last
// good snapshot in place, so matching keeps working through API outages.
//
// The refresh is a plain check-then-fetch: two goroutines racing an expired
// cache may both fetch. The remote call is idempotent and the result is
// applied idempotently, so the redundant fetch is accepted rather than
// serialized.
type Directory struct {
	lister    Lister
	projectID string
	ttl       time.Duration
	log       zerolog.Logger

	mu        sync.Mutex
	holes     []model.Hole
	fetchedAt time.Time

	now func() time.Time
}

// NewDirectory creates a hole directory for one project.
func NewDirectory(lister Lister, projectID string, ttl time.Duration, logger zerolog.Logger) *Directory {
	return &Directory{
		lister:    lister,
		projectID: projectID,
		ttl:       ttl,
		log:       logger.With().Str("module", "holes").Logger(),
		now:       time.Now,
	}
}

// Holes returns a copy of the cached hole set, refreshing it from the API
// when the cache is empty or older than the TTL. Mutating the returned slice
// never affects the cache. The network call is made without holding the lock.
func (d *Directory) Holes() []model.Hole {
	d.mu.Lock()
	if len(d.holes) > 0 && d.now().Sub(d.fetchedAt) < d.ttl {
		snapshot := copyHoles(d.holes)
		d.mu.Unlock()
		return snapshot
	}
	stale := copyHoles(d.holes)
	d.mu.Unlock()

	fetched, err := d.lister.GetHoles(d.projectID)
	if err != nil {
		// Keep serving the last good snapshot; an empty result here means
		// there has never been a successful fetch.
		d.log.Warn().Err(err).Int("stale_count", len(stale)).
			Msg("hole fetch failed, serving cached snapshot")
		return stale
	}

	d.mu.Lock()
	d.holes = fetched
	d.fetchedAt = d.now()
	d.mu.Unlock()

	d.log.Info().Int("count", len(fetched)).Msg("hole directory refreshed")
	return copyHoles(fetched)
}

func copyHoles(holes []model.Hole) []model.Hole {
	out := make([]model.Hole, len(holes))
	copy(out, holes)
	return out
}

// Invalidate clears the cache unconditionally, forcing the next Holes call
// to refetch.
func (d *Directory) Invalidate() {
	d.mu.Lock()
	d.holes = nil
	d.fetchedAt = time.Time{}
	d.mu.Unlock()
}
