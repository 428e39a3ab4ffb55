// Package xuehuaguard_test checks worker id leases against an in-memory redis
// Covers claim, rejection of a second session, renewal, release and expiry
//
// xuehuaguard_test 基于内存 redis 校验工作节点号租约
// 覆盖占有、拒绝第二个会话、续期、释放和过期
package xuehuaguard_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-xlan/xuehua-go-id/xuehuaguard"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/yyle88/must"
	"github.com/yyle88/rese"
)

var (
	caseMiniRedis   *miniredis.Miniredis
	caseRedisClient redis.UniversalClient
)

func TestMain(m *testing.M) {
	miniRedis := rese.P1(miniredis.Run())
	defer miniRedis.Close()

	redisClient := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{miniRedis.Addr()},
		PoolSize:     10,
		MinIdleConns: 10,
	})
	must.Done(redisClient.Ping(context.Background()).Err())

	caseMiniRedis = miniRedis
	caseRedisClient = redisClient

	m.Run()
}

func TestGuard_ClaimRelease(t *testing.T) {
	ctx := context.Background()

	guard := xuehuaguard.NewGuard(caseRedisClient, "xuehua-test-claim", 200*time.Millisecond)
	lease, err := guard.Claim(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, lease)
	require.Equal(t, int64(7), lease.WorkerID())
	require.Len(t, lease.Session(), 32)
	require.True(t, time.Until(lease.Expire()) <= guard.TTL())

	owner, err := guard.Owner(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, lease.Session(), owner)

	success, err := guard.Release(ctx, lease)
	require.NoError(t, err)
	require.True(t, success)

	owner, err = guard.Owner(ctx, 7)
	require.NoError(t, err)
	require.Empty(t, owner)
}

// TestGuard_SecondSessionRejected checks one worker id has a single holder
// TestGuard_SecondSessionRejected 校验一个工作节点号只有一个持有者
func TestGuard_SecondSessionRejected(t *testing.T) {
	ctx := context.Background()
	guard := xuehuaguard.NewGuard(caseRedisClient, "xuehua-test-twice", 5*time.Second)

	for i := 0; i < 2; i++ {
		lease, err := guard.Claim(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, lease)

		other, err := guard.Claim(ctx, 1)
		require.NoError(t, err)
		require.Nil(t, other)

		require.Panics(t, func() {
			_, _ = guard.Release(ctx, &xuehuaguard.Lease{}) // blank session
		})

		success, err := guard.Release(ctx, lease)
		require.NoError(t, err)
		require.True(t, success)
	}
}

func TestGuard_DistinctWorkerIDs(t *testing.T) {
	ctx := context.Background()
	guard := xuehuaguard.NewGuard(caseRedisClient, "xuehua-test-distinct", 5*time.Second)

	lease1, err := guard.Claim(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, lease1)

	lease2, err := guard.Claim(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, lease2)

	success, err := guard.Release(ctx, lease1)
	require.NoError(t, err)
	require.True(t, success)

	success, err = guard.Release(ctx, lease2)
	require.NoError(t, err)
	require.True(t, success)
}

func TestGuard_ReleaseHeldByOther(t *testing.T) {
	ctx := context.Background()
	guard := xuehuaguard.NewGuard(caseRedisClient, "xuehua-test-other", 5*time.Second)

	lease, err := guard.ClaimWithSession(ctx, 3, "session-a")
	require.NoError(t, err)
	require.NotNil(t, lease)

	stale, err := guard.ClaimWithSession(ctx, 4, "session-b")
	require.NoError(t, err)
	require.NotNil(t, stale)
	require.NoError(t, caseRedisClient.Set(ctx, guard.Key(4), "session-c", 0).Err())

	success, err := guard.Release(ctx, stale)
	require.NoError(t, err)
	require.False(t, success)

	success, err = guard.Release(ctx, lease)
	require.NoError(t, err)
	require.True(t, success)
	require.NoError(t, caseRedisClient.Del(ctx, guard.Key(4)).Err())
}

// TestGuard_Expired checks that an expired lease frees the worker id and still releases cleanly
// TestGuard_Expired 校验租约过期后节点号被释放，且释放依旧成功
func TestGuard_Expired(t *testing.T) {
	ctx := context.Background()
	ttl := 100 * time.Millisecond
	guard := xuehuaguard.NewGuard(caseRedisClient, "xuehua-test-expired", ttl)

	lease, err := guard.Claim(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, lease)

	caseMiniRedis.FastForward(ttl * 2)

	other, err := guard.Claim(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, other)

	success, err := guard.Release(ctx, lease)
	require.NoError(t, err)
	require.False(t, success) // the new holder keeps it

	success, err = guard.Release(ctx, other)
	require.NoError(t, err)
	require.True(t, success)

	success, err = guard.Release(ctx, other)
	require.NoError(t, err)
	require.True(t, success) // already gone counts as released
}

func TestGuard_Renew(t *testing.T) {
	ctx := context.Background()
	ttl := 300 * time.Millisecond
	guard := xuehuaguard.NewGuard(caseRedisClient, "xuehua-test-renew", ttl)

	lease, err := guard.Claim(ctx, 6)
	require.NoError(t, err)
	require.NotNil(t, lease)

	caseMiniRedis.FastForward(ttl * 2 / 3)

	renewed, err := guard.Renew(ctx, lease)
	require.NoError(t, err)
	require.NotNil(t, renewed)
	require.Equal(t, lease.Session(), renewed.Session())

	caseMiniRedis.FastForward(ttl * 2 / 3)
	owner, err := guard.Owner(ctx, 6)
	require.NoError(t, err)
	require.Equal(t, lease.Session(), owner) // would have expired without the renewal

	success, err := guard.Release(ctx, renewed)
	require.NoError(t, err)
	require.True(t, success)
}

// TestGuard_ForeignLease checks a lease is only accepted by a guard with the same prefix
// TestGuard_ForeignLease 校验租约只能交给相同前缀的守护使用
func TestGuard_ForeignLease(t *testing.T) {
	ctx := context.Background()
	guard := xuehuaguard.NewGuard(caseRedisClient, "xuehua-test-foreign-a", 200*time.Millisecond)
	other := xuehuaguard.NewGuard(caseRedisClient, "xuehua-test-foreign-b", 200*time.Millisecond)

	lease, err := guard.Claim(ctx, 8)
	require.NoError(t, err)
	require.NotNil(t, lease)
	require.Equal(t, "xuehua-test-foreign-a:8", lease.Key())

	require.Panics(t, func() {
		_, _ = other.Release(ctx, lease)
	})
	require.Panics(t, func() {
		_, _ = other.Renew(ctx, lease)
	})
	require.True(t, caseMiniRedis.Exists("xuehua-test-foreign-a:8"))

	success, err := guard.Release(ctx, lease)
	require.NoError(t, err)
	require.True(t, success)
}
