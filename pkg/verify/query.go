package verify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/bpomverify/bpomverify/internal/aggregator"
	verrors "github.com/bpomverify/bpomverify/internal/errors"
)

// queryCacheTTL bounds how long a text-query decision is memoized before a
// repeat of the same query re-runs the full router/aggregator path — short
// enough that a registry status change (revocation) surfaces promptly.
const queryCacheTTL = 5 * time.Minute

// VerifyQuery verifies a textual query — a registration code or a
// free-text product title — against the registry, returning the
// aggregated decision. Results are cached by exact query text for
// queryCacheTTL, and every call (cache hit or miss) appends one audit row.
func (s *Service) VerifyQuery(ctx context.Context, query string) (*aggregator.Result, error) {
	if query == "" {
		return nil, verrors.New(verrors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}

	result, err := s.queryCached(ctx, query)
	if err != nil {
		return nil, err
	}

	if auditErr := s.registry.SaveAudit(ctx, query, result.Decision, time.Now()); auditErr != nil {
		slog.Warn("failed to write audit record", slog.String("error", auditErr.Error()))
	}
	return result, nil
}

func (s *Service) queryCached(ctx context.Context, query string) (*aggregator.Result, error) {
	cacheKey := "verify:query:" + query
	if cached, ok := s.cache.Get(cacheKey); ok {
		var result aggregator.Result
		if err := json.Unmarshal(cached, &result); err == nil {
			return &result, nil
		}
	}

	hits, err := s.router.Query(ctx, query)
	if err != nil {
		return nil, verrors.Wrap(verrors.ErrCodeAggregateFailed, err)
	}

	evidence := make([]aggregator.Evidence, 0, len(hits))
	for _, h := range hits {
		evidence = append(evidence, evidenceFromHit(h))
	}

	result := aggregator.Aggregate(evidence)

	if encoded, err := json.Marshal(result); err == nil {
		s.cache.Set(cacheKey, encoded, queryCacheTTL)
	}

	return &result, nil
}
