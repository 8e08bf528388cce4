package secondary

import (
	"context"

	"gitlab.com/proxygrid.net/internal/domain"
)

// WorkingSet is the latency-ordered cache of currently working proxies.
type WorkingSet interface {
	// Update reflects one outcome into the cache: working proxies are
	// (re)scored by latency, failed ones are removed.
	Update(ctx context.Context, proxy domain.CandidateProxy, outcome domain.Outcome) error

	// Fastest returns up to limit members ordered by latency ascending.
	Fastest(ctx context.Context, limit int) ([]domain.WorkingProxy, error)
}
