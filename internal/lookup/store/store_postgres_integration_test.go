//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"ipwatch/internal/lookup/models"
	"ipwatch/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite

	pg    *containers.PostgresContainer
	store *PostgresStore
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = NewPostgres(s.pg.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background(), "ip_records", "lookup_log"))
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func sampleResult(address string) *models.LookupResult {
	return &models.LookupResult{
		Address:          address,
		ISPNameLocal:     "中華電信",
		ISPNameCanonical: "Chunghwa Telecom",
		Country:          "TW",
		City:             "Taipei",
		ThreatLevel:      2,
	}
}

func (s *PostgresStoreSuite) TestFindMissingReturnsNotFound() {
	_, err := s.store.FindByAddress(context.Background(), "8.8.8.8")
	s.ErrorIs(err, ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpsertInsertRoundTrip() {
	ctx := context.Background()
	s.Require().NoError(s.store.Upsert(ctx, sampleResult("168.95.1.1")))

	got, err := s.store.FindByAddress(ctx, "168.95.1.1")
	s.Require().NoError(err)
	s.Equal("Chunghwa Telecom", got.ISPNameCanonical)
	s.Equal("中華電信", got.ISPNameLocal)
	s.Equal(int64(1), got.QueryCount)
	s.WithinDuration(time.Now(), got.LastQueriedAt, time.Minute)
}

func (s *PostgresStoreSuite) TestUpsertTwiceIncrementsInsteadOfDuplicating() {
	ctx := context.Background()
	s.Require().NoError(s.store.Upsert(ctx, sampleResult("168.95.1.1")))
	s.Require().NoError(s.store.Upsert(ctx, sampleResult("168.95.1.1")))

	got, err := s.store.FindByAddress(ctx, "168.95.1.1")
	s.Require().NoError(err)
	s.Equal(int64(2), got.QueryCount)

	count, err := s.store.CountRecords(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), count)
}

func (s *PostgresStoreSuite) TestConcurrentUpsertsKeepOneRow() {
	ctx := context.Background()
	const writers = 8

	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			return s.store.Upsert(ctx, sampleResult("1.1.1.1"))
		})
	}
	s.Require().NoError(g.Wait())

	count, err := s.store.CountRecords(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), count)

	got, err := s.store.FindByAddress(ctx, "1.1.1.1")
	s.Require().NoError(err)
	s.Equal(int64(writers), got.QueryCount)
}

func (s *PostgresStoreSuite) TestIncrementAndTouch() {
	ctx := context.Background()
	s.ErrorIs(s.store.IncrementAndTouch(ctx, "8.8.8.8"), ErrNotFound)

	s.Require().NoError(s.store.Upsert(ctx, sampleResult("8.8.8.8")))
	s.Require().NoError(s.store.IncrementAndTouch(ctx, "8.8.8.8"))

	got, err := s.store.FindByAddress(ctx, "8.8.8.8")
	s.Require().NoError(err)
	s.Equal(int64(2), got.QueryCount)
}

func (s *PostgresStoreSuite) TestLookupLogAndClear() {
	ctx := context.Background()
	s.Require().NoError(s.store.Upsert(ctx, sampleResult("8.8.8.8")))
	s.Require().NoError(s.store.AppendLog(ctx, models.LogEntry{
		Address: "8.8.8.8", Country: "US", ThreatLevel: 1,
	}))

	logs, err := s.store.CountLogs(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), logs)

	s.Require().NoError(s.store.ClearRecords(ctx))
	records, err := s.store.CountRecords(ctx)
	s.Require().NoError(err)
	s.Zero(records)

	// Clearing records keeps the historical log.
	logs, err = s.store.CountLogs(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), logs)
}
