package lease

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"connector-sync/testutil"
)

type RedisLockerTestSuite struct {
	suite.Suite
	ctx    context.Context
	helper *testutil.RedisHelper
	locker *RedisLocker
}

func TestRedisLockerSuite(t *testing.T) {
	if os.Getenv("SKIP_INTEGRATION_TESTS") == "true" {
		t.Skip("Skipping integration tests")
	}
	suite.Run(t, new(RedisLockerTestSuite))
}

func (s *RedisLockerTestSuite) SetupSuite() {
	s.ctx = context.Background()
	var err error
	s.helper, err = testutil.NewRedisContainer(s.ctx)
	s.Require().NoError(err)
	s.locker, err = NewRedisLocker(s.ctx, s.helper.Config)
	s.Require().NoError(err)
}

func (s *RedisLockerTestSuite) TearDownSuite() {
	if s.locker != nil {
		s.locker.Close()
	}
	if s.helper != nil {
		s.helper.Terminate(s.ctx)
	}
}

func (s *RedisLockerTestSuite) TestAcquireRelease() {
	held, err := s.locker.Acquire(s.ctx, "org-1_hubspot", time.Minute)
	s.Require().NoError(err)

	_, err = s.locker.Acquire(s.ctx, "org-1_hubspot", time.Minute)
	s.ErrorIs(err, ErrLeaseHeld)

	s.Require().NoError(held.Release(s.ctx))
	again, err := s.locker.Acquire(s.ctx, "org-1_hubspot", time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(again.Release(s.ctx))
}

func (s *RedisLockerTestSuite) TestLeaseExpires() {
	_, err := s.locker.Acquire(s.ctx, "org-2_xero", 200*time.Millisecond)
	s.Require().NoError(err)

	s.Eventually(func() bool {
		l, err := s.locker.Acquire(s.ctx, "org-2_xero", time.Minute)
		if err != nil {
			return false
		}
		return l.Release(s.ctx) == nil
	}, 3*time.Second, 50*time.Millisecond)
}

func (s *RedisLockerTestSuite) TestStaleHolderCannotReleaseNewLease() {
	stale, err := s.locker.Acquire(s.ctx, "org-3_xero", 100*time.Millisecond)
	s.Require().NoError(err)
	time.Sleep(300 * time.Millisecond)

	fresh, err := s.locker.Acquire(s.ctx, "org-3_xero", time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(stale.Release(s.ctx))

	_, err = s.locker.Acquire(s.ctx, "org-3_xero", time.Minute)
	s.ErrorIs(err, ErrLeaseHeld)
	s.Require().NoError(fresh.Release(s.ctx))
}

func (s *RedisLockerTestSuite) TestExtendKeepsLeaseAlive() {
	held, err := s.locker.Acquire(s.ctx, "org-4_hubspot", 300*time.Millisecond)
	s.Require().NoError(err)

	for range 4 {
		time.Sleep(150 * time.Millisecond)
		s.Require().NoError(held.Extend(s.ctx, 300*time.Millisecond))
	}

	_, err = s.locker.Acquire(s.ctx, "org-4_hubspot", time.Minute)
	s.ErrorIs(err, ErrLeaseHeld)
	s.Require().NoError(held.Release(s.ctx))
	s.ErrorIs(held.Extend(s.ctx, time.Minute), ErrLeaseLost)
}
