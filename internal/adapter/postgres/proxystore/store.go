// package proxystore contains the PostgreSQL implementation of the
// candidate proxy store.
package proxystore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"gitlab.com/proxygrid.net/internal/core/ports/primary"
	"gitlab.com/proxygrid.net/internal/core/ports/secondary"
	"gitlab.com/proxygrid.net/internal/domain"
)

// Store implements the ProxyStore interface with PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger primary.Logger
}

var _ secondary.ProxyStore = (*Store)(nil)

// NewStore creates a new PostgreSQL proxy store
func NewStore(db *sqlx.DB, logger primary.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// FetchCandidates returns candidates matching the filter, oldest checked
// first so stale proxies are revalidated before fresh ones.
func (s *Store) FetchCandidates(ctx context.Context, filter domain.CandidateFilter, limit int) ([]domain.CandidateProxy, error) {
	query := `
		SELECT id, ip, port, protocol, COALESCE(country, '') AS country
		FROM proxies
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR protocol = $2)
		  AND ($3 = '' OR country = $3)
		  AND ($4 <= 0 OR last_checked IS NULL OR last_checked < NOW() - ($4 * INTERVAL '1 minute'))
		ORDER BY last_checked ASC NULLS FIRST
		LIMIT $5
	`

	var proxies []domain.CandidateProxy
	err := s.db.SelectContext(
		ctx,
		&proxies,
		query,
		filter.Status,
		string(filter.Protocol),
		filter.Country,
		filter.AgeMinutes,
		limit,
	)
	if err != nil {
		s.logger.Error("Failed to fetch candidates", "error", err)
		return nil, fmt.Errorf("failed to fetch candidates: %w", err)
	}

	return proxies, nil
}

// UpsertResult writes the latest validation outcome onto the proxy row.
func (s *Store) UpsertResult(ctx context.Context, proxyID string, outcome domain.Outcome) error {
	status := "failed"
	if outcome.Working {
		status = "working"
	}

	query := `
		UPDATE proxies SET
			status = $2,
			response_time_ms = $3,
			supports_https = $4,
			last_checked = $5,
			last_error = NULLIF($6, ''),
			check_count = check_count + 1
		WHERE id = $1
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		proxyID,
		status,
		outcome.LatencyMs,
		outcome.SupportsHTTPS,
		outcome.CheckedAt,
		outcome.Error,
	)
	if err != nil {
		s.logger.Error("Failed to upsert result", "proxyID", proxyID, "error", err)
		return fmt.Errorf("failed to upsert result: %w", err)
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("proxy not found: %s", proxyID)
	}

	return nil
}

// AppendHistory records one validation attempt in the check history.
func (s *Store) AppendHistory(ctx context.Context, proxyID string, workerID string, outcome domain.Outcome) error {
	query := `
		INSERT INTO proxy_checks (
			proxy_id, worker_id, working, response_time_ms,
			error_kind, error_detail, checked_at
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		proxyID,
		workerID,
		outcome.Working,
		outcome.LatencyMs,
		string(outcome.ErrorKind),
		outcome.Error,
		outcome.CheckedAt,
	)
	if err != nil {
		s.logger.Error("Failed to append check history", "proxyID", proxyID, "error", err)
		return fmt.Errorf("failed to append check history: %w", err)
	}

	return nil
}

// QueryWorking returns working proxies ordered by latency ascending.
func (s *Store) QueryWorking(ctx context.Context, limit int) ([]domain.WorkingProxy, error) {
	query := `
		SELECT id, ip, port, protocol, response_time_ms
		FROM proxies
		WHERE status = 'working' AND response_time_ms IS NOT NULL
		ORDER BY response_time_ms ASC
		LIMIT $1
	`

	var proxies []domain.WorkingProxy
	if err := s.db.SelectContext(ctx, &proxies, query, limit); err != nil {
		s.logger.Error("Failed to query working proxies", "error", err)
		return nil, fmt.Errorf("failed to query working proxies: %w", err)
	}

	return proxies, nil
}

// Ping reports store reachability for health checks.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}
