package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ipwatch/internal/lookup/models"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory().WithRetryPolicy(maxConflictRetries, time.Millisecond)
}

func testResult(address string) *models.LookupResult {
	return &models.LookupResult{
		Address:          address,
		ISPNameLocal:     "中華電信",
		ISPNameCanonical: "Chunghwa Telecom",
		Country:          "TW",
		City:             "Taipei",
		ThreatLevel:      2,
	}
}

func (s *InMemoryStoreSuite) TestFindByAddress() {
	ctx := context.Background()

	s.Run("missing address returns ErrNotFound", func() {
		_, err := s.store.FindByAddress(ctx, "8.8.8.8")
		s.ErrorIs(err, ErrNotFound)
	})

	s.Run("returned record is a copy", func() {
		s.Require().NoError(s.store.Upsert(ctx, testResult("1.1.1.1")))

		found, err := s.store.FindByAddress(ctx, "1.1.1.1")
		s.Require().NoError(err)
		found.ThreatLevel = 10

		again, err := s.store.FindByAddress(ctx, "1.1.1.1")
		s.Require().NoError(err)
		s.Equal(2, again.ThreatLevel, "caller mutation must not leak into the store")
	})
}

func (s *InMemoryStoreSuite) TestUpsert() {
	ctx := context.Background()

	s.Run("first upsert inserts with query count one", func() {
		s.Require().NoError(s.store.Upsert(ctx, testResult("1.1.1.1")))

		found, err := s.store.FindByAddress(ctx, "1.1.1.1")
		s.Require().NoError(err)
		s.Equal(int64(1), found.QueryCount)
		s.False(found.LastQueriedAt.IsZero())
	})

	s.Run("second upsert increments instead of duplicating", func() {
		s.Require().NoError(s.store.Upsert(ctx, testResult("2.2.2.2")))
		s.Require().NoError(s.store.Upsert(ctx, testResult("2.2.2.2")))

		found, err := s.store.FindByAddress(ctx, "2.2.2.2")
		s.Require().NoError(err)
		s.Equal(int64(2), found.QueryCount)

		count, err := s.store.CountRecords(ctx)
		s.Require().NoError(err)
		s.Equal(int64(2), count, "one row per address across the suite run")
	})
}

func (s *InMemoryStoreSuite) TestUpsertRetriesTransientConflict() {
	ctx := context.Background()

	s.store.FailNextUpserts(1)
	s.Require().NoError(s.store.Upsert(ctx, testResult("3.3.3.3")))

	found, err := s.store.FindByAddress(ctx, "3.3.3.3")
	s.Require().NoError(err)
	s.Equal(int64(1), found.QueryCount, "exactly one row after a retried conflict")
}

func (s *InMemoryStoreSuite) TestUpsertSurfacesExhaustedRetries() {
	ctx := context.Background()

	s.Require().NoError(s.store.Upsert(ctx, testResult("4.4.4.4")))

	// One initial attempt plus maxConflictRetries retries, all conflicted.
	s.store.FailNextUpserts(maxConflictRetries + 2)
	err := s.store.Upsert(ctx, testResult("5.5.5.5"))
	s.ErrorIs(err, ErrConflict)

	// Existing data is untouched by the failed write.
	found, err := s.store.FindByAddress(ctx, "4.4.4.4")
	s.Require().NoError(err)
	s.Equal(int64(1), found.QueryCount)

	_, err = s.store.FindByAddress(ctx, "5.5.5.5")
	s.ErrorIs(err, ErrNotFound)
}

func (s *InMemoryStoreSuite) TestIncrementAndTouch() {
	ctx := context.Background()

	s.Run("missing record returns ErrNotFound", func() {
		s.ErrorIs(s.store.IncrementAndTouch(ctx, "9.9.9.9"), ErrNotFound)
	})

	s.Run("existing record is bumped and touched", func() {
		s.Require().NoError(s.store.Upsert(ctx, testResult("6.6.6.6")))
		before, _ := s.store.FindByAddress(ctx, "6.6.6.6")

		s.Require().NoError(s.store.IncrementAndTouch(ctx, "6.6.6.6"))

		after, err := s.store.FindByAddress(ctx, "6.6.6.6")
		s.Require().NoError(err)
		s.Equal(before.QueryCount+1, after.QueryCount)
		s.False(after.LastQueriedAt.Before(before.LastQueriedAt))
	})
}

func (s *InMemoryStoreSuite) TestLogsAndClear() {
	ctx := context.Background()

	s.Require().NoError(s.store.AppendLog(ctx, models.LogEntry{Address: "1.1.1.1", Country: "AU"}))
	s.Require().NoError(s.store.AppendLog(ctx, models.LogEntry{Address: "2.2.2.2", Country: "US"}))

	logs, err := s.store.CountLogs(ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), logs)

	s.Require().NoError(s.store.Upsert(ctx, testResult("1.1.1.1")))
	s.Require().NoError(s.store.ClearRecords(ctx))

	records, err := s.store.CountRecords(ctx)
	s.Require().NoError(err)
	s.Equal(int64(0), records)

	logs, err = s.store.CountLogs(ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), logs, "clearing records leaves the log intact")
}
