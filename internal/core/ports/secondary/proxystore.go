package secondary

import (
	"context"

	"gitlab.com/proxygrid.net/internal/domain"
)

// ProxyStore is the read/write contract against the external candidate
// store. The core does not define the store's schema beyond this interface.
type ProxyStore interface {
	// FetchCandidates returns candidates matching filter, oldest-checked
	// first, capped by limit.
	FetchCandidates(ctx context.Context, filter domain.CandidateFilter, limit int) ([]domain.CandidateProxy, error)

	// UpsertResult writes the latest validation outcome onto the proxy row.
	UpsertResult(ctx context.Context, proxyID string, outcome domain.Outcome) error

	// AppendHistory records one validation attempt in the check history.
	AppendHistory(ctx context.Context, proxyID string, workerID string, outcome domain.Outcome) error

	// QueryWorking returns working proxies ordered by latency ascending.
	QueryWorking(ctx context.Context, limit int) ([]domain.WorkingProxy, error)

	// Ping reports store reachability for health checks.
	Ping(ctx context.Context) error
}
