// Package service orchestrates address resolution: classification, cache
// and store lookups, the external provider fetch, normalization, and
// best-effort persistence.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"ipwatch/internal/audit"
	"ipwatch/internal/cache"
	"ipwatch/internal/classify"
	"ipwatch/internal/ispdir"
	"ipwatch/internal/lookup/metrics"
	"ipwatch/internal/lookup/models"
	"ipwatch/internal/lookup/provider"
	"ipwatch/internal/lookup/store"
)

// Outcome labels for metrics and audit events.
const (
	outcomeResolved = "resolved"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

// Service resolves addresses to enriched intelligence.
type Service struct {
	resolver provider.Resolver
	store    store.Store
	cache    *cache.Cache
	ispdir   *ispdir.Directory
	logger   *slog.Logger
	metrics  *metrics.Metrics
	recorder *audit.Recorder

	// fetches coalesces concurrent provider calls per address. Concurrent
	// resolutions of the same new address share one external request and
	// one durable write.
	fetches singleflight.Group
}

// New constructs the orchestrator with its collaborators.
func New(
	resolver provider.Resolver,
	st store.Store,
	c *cache.Cache,
	dir *ispdir.Directory,
	logger *slog.Logger,
	m *metrics.Metrics,
	recorder *audit.Recorder,
) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		resolver: resolver,
		store:    st,
		cache:    c,
		ispdir:   dir,
		logger:   logger,
		metrics:  m,
		recorder: recorder,
	}
}

// Resolve runs the lookup state machine for one address. Terminal states:
// a result (RESOLVED), a *RejectedError (REJECTED), or a provider error
// (FAILED). Persistence failures after a successful fetch are logged and
// never erase the already-computed result.
func (s *Service) Resolve(ctx context.Context, address string) (*models.LookupResult, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveResolveDuration(time.Since(start))
	}()

	// VALIDATE
	if strings.TrimSpace(address) == "" {
		s.metrics.RecordOutcome(outcomeRejected)
		return nil, Rejected(ReasonEmptyInput, address)
	}

	cls := s.classification(ctx, address)
	if !cls.Valid {
		s.metrics.RecordOutcome(outcomeRejected)
		return nil, Rejected(ReasonInvalidFormat, address)
	}
	if cls.Reserved {
		s.metrics.RecordOutcome(outcomeRejected)
		return nil, Rejected(ReasonReservedAddress, address)
	}
	addr := cls.Address

	// CACHE/STORE LOOKUP
	result, err := s.cachedResult(ctx, addr)
	if err != nil {
		s.metrics.RecordOutcome(outcomeFailed)
		return nil, err
	}
	if !result.Stale() {
		s.metrics.RecordOutcome(outcomeResolved)
		return result, nil
	}

	// EXTERNAL FETCH + PERSIST
	result, err = s.fetchAndPersist(ctx, addr)
	if err != nil {
		s.metrics.RecordOutcome(outcomeFailed)
		s.record(audit.Event{Address: addr, Outcome: outcomeFailed, Timestamp: time.Now()})
		return nil, err
	}

	s.metrics.RecordOutcome(outcomeResolved)
	return result, nil
}

// classification returns the cached classification for a raw address
// string. Classification is a pure function of the input, so entries live
// under the general namespace.
func (s *Service) classification(ctx context.Context, address string) classify.Classification {
	key := cache.Key(cache.NamespaceGeneral, "cls:"+address)
	cls, err := cache.GetOrCreate(ctx, s.cache, key, s.cache.TTLFor(cache.NamespaceGeneral),
		func(context.Context) (classify.Classification, error) {
			return classify.Classify(address), nil
		})
	if err != nil {
		// The factory cannot fail; classify directly as a fallback.
		return classify.Classify(address)
	}
	return cls
}

// cachedResult reads the resolution cache, falling back to the store on a
// miss. A store hit counts the resolution and refreshes the timestamp. A
// store miss is cached as a placeholder, not as an absence, so repeated
// misses stay cheap while the staleness predicate still forces a fetch.
func (s *Service) cachedResult(ctx context.Context, addr string) (*models.LookupResult, error) {
	key := cache.Key(cache.NamespaceResolution, addr)
	return cache.GetOrCreate(ctx, s.cache, key, s.cache.TTLFor(cache.NamespaceResolution),
		func(ctx context.Context) (*models.LookupResult, error) {
			record, err := s.store.FindByAddress(ctx, addr)
			if err == nil {
				if err := s.store.IncrementAndTouch(ctx, addr); err != nil {
					s.logger.WarnContext(ctx, "increment on store hit failed", "address", addr, "error", err)
				} else {
					record.QueryCount++
					record.LastQueriedAt = time.Now()
				}
				return record, nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				s.logger.WarnContext(ctx, "store read failed, treating as miss", "address", addr, "error", err)
			}
			return models.Placeholder(addr, time.Now()), nil
		})
}

// fetchAndPersist calls the external provider and durably records the
// result. Concurrent callers for the same address share one flight; the
// waiters account their resolutions with an increment so the stored count
// reflects every caller.
func (s *Service) fetchAndPersist(ctx context.Context, addr string) (*models.LookupResult, error) {
	// led is set only inside the closure, which singleflight runs in exactly
	// one caller. The leader's resolution is counted by the upsert itself;
	// every waiter accounts its own with an increment.
	var led bool
	v, err, _ := s.fetches.Do(addr, func() (any, error) {
		led = true
		return s.resolveFresh(ctx, addr)
	})
	if err != nil {
		return nil, err
	}

	result, ok := v.(*models.LookupResult)
	if !ok {
		return nil, fmt.Errorf("unexpected flight result %T", v)
	}

	if !led {
		if err := s.store.IncrementAndTouch(ctx, addr); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.WarnContext(ctx, "increment for coalesced resolution failed", "address", addr, "error", err)
		}
	}
	return result, nil
}

func (s *Service) resolveFresh(ctx context.Context, addr string) (*models.LookupResult, error) {
	report, err := s.resolver.FetchFromProvider(ctx, addr)
	if err != nil {
		s.metrics.RecordProviderCall(string(provider.CategoryOf(err)))
		s.logger.ErrorContext(ctx, "provider fetch failed", "address", addr, "error", err)
		return nil, err
	}
	s.metrics.RecordProviderCall("ok")

	result := s.buildResult(addr, report)

	// PERSIST: best-effort. The current caller keeps the result even when
	// the durable write ultimately fails.
	if err := s.store.Upsert(ctx, result); err != nil {
		s.metrics.RecordPersistFailure()
		s.logger.ErrorContext(ctx, "persist after fetch failed", "address", addr, "error", err)
	} else {
		if persisted, err := s.store.FindByAddress(ctx, addr); err == nil {
			result.QueryCount = persisted.QueryCount
			result.LastQueriedAt = persisted.LastQueriedAt
		}
		key := cache.Key(cache.NamespaceResolution, addr)
		s.cache.Set(key, result, s.cache.TTLFor(cache.NamespaceResolution))
	}

	if err := s.store.AppendLog(ctx, models.LogEntry{
		Address:     addr,
		Country:     result.Country,
		IsVPN:       result.IsVPN,
		ThreatLevel: result.ThreatLevel,
		CreatedAt:   time.Now(),
	}); err != nil {
		s.logger.WarnContext(ctx, "lookup log append failed", "address", addr, "error", err)
	}

	s.record(audit.Event{
		Address:     addr,
		Country:     result.Country,
		IsVPN:       result.IsVPN,
		ThreatLevel: result.ThreatLevel,
		Outcome:     outcomeResolved,
		Timestamp:   time.Now(),
	})
	return result, nil
}

// buildResult normalizes a provider report into a LookupResult.
func (s *Service) buildResult(addr string, report *provider.Report) *models.LookupResult {
	country := report.CountryCode
	if country == "" {
		country = models.Unknown
	}
	city := report.City
	if city == "" {
		city = models.Unknown
	}

	local, canonical := models.Unknown, models.Unknown
	if report.ISP != "" {
		local, canonical = s.ispdir.Normalize(report.ISP, report.Host)
	}

	isVPN := report.VPN || report.Proxy
	vpnProvider := ""
	if isVPN {
		vpnProvider = report.Organization
	}

	return &models.LookupResult{
		Address:          addr,
		ISPNameLocal:     local,
		ISPNameCanonical: canonical,
		IsVPN:            isVPN,
		VPNProvider:      vpnProvider,
		Country:          country,
		City:             city,
		ThreatLevel:      threatLevel(report.FraudScore),
		QueryCount:       1,
		LastQueriedAt:    time.Now(),
	}
}

// threatLevel maps the provider's 0-100 fraud score onto 0-10.
func threatLevel(fraudScore int) int {
	level := int(math.Round(float64(fraudScore) / 10))
	if level < 0 {
		return 0
	}
	if level > 10 {
		return 10
	}
	return level
}

// GetAggregateCounts returns the record/log tally, cached under the short
// stats TTL so dashboards see near-real-time values without hammering the
// store.
func (s *Service) GetAggregateCounts(ctx context.Context) (models.AggregateCounts, error) {
	key := cache.Key(cache.NamespaceStats, "counts")
	return cache.GetOrCreate(ctx, s.cache, key, s.cache.TTLFor(cache.NamespaceStats),
		func(ctx context.Context) (models.AggregateCounts, error) {
			records, err := s.store.CountRecords(ctx)
			if err != nil {
				return models.AggregateCounts{}, fmt.Errorf("count records: %w", err)
			}
			logs, err := s.store.CountLogs(ctx)
			if err != nil {
				return models.AggregateCounts{}, fmt.Errorf("count logs: %w", err)
			}
			return models.AggregateCounts{RecordCount: records, LogCount: logs}, nil
		})
}

// InvalidateResolutionCache drops one cached resolution, or every cached
// resolution when address is empty.
func (s *Service) InvalidateResolutionCache(address string) int {
	if address == "" {
		return s.cache.InvalidatePrefix(string(cache.NamespaceResolution) + ":")
	}
	if s.cache.Invalidate(cache.Key(cache.NamespaceResolution, strings.TrimSpace(address))) {
		return 1
	}
	return 0
}

// ClearRecords wipes the durable records and the resolution cache.
// Administrative operation.
func (s *Service) ClearRecords(ctx context.Context) error {
	if err := s.store.ClearRecords(ctx); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	s.cache.InvalidatePrefix(string(cache.NamespaceResolution) + ":")
	s.cache.InvalidatePrefix(string(cache.NamespaceStats) + ":")
	return nil
}

// CacheStats exposes the cache accounting snapshot.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

func (s *Service) record(event audit.Event) {
	if s.recorder != nil {
		s.recorder.Record(event)
	}
}
