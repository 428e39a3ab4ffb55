package xuehuarun_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-xlan/xuehua-go-id/internal/logging"
	"github.com/go-xlan/xuehua-go-id/internal/utils"
	"github.com/go-xlan/xuehua-go-id/xuehuaguard"
	"github.com/go-xlan/xuehua-go-id/xuehuaid"
	"github.com/go-xlan/xuehua-go-id/xuehuarun"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/yyle88/must"
	"github.com/yyle88/rese"
)

var caseRds redis.UniversalClient

func TestMain(m *testing.M) {
	miniRedis := rese.P1(miniredis.Run())
	defer miniRedis.Close()

	redisUc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{miniRedis.Addr()},
		PoolSize:     10,
		MinIdleConns: 10,
	})
	must.Done(redisUc.Ping(context.Background()).Err())

	caseRds = redisUc

	m.Run()
}

func newGenerator(t *testing.T, workerID int64) *xuehuaid.Generator {
	gen, err := xuehuaid.NewWorkerGenerator(workerID)
	require.NoError(t, err)
	return gen
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	guard := xuehuaguard.NewGuard(caseRds, "xuehua-run-"+utils.NewSession(), time.Second)
	gen := newGenerator(t, 12)

	var ids []int64
	err := xuehuarun.Run(ctx, guard, gen, func(ctx context.Context, gen *xuehuaid.Generator) error {
		owner, err := guard.Owner(ctx, gen.WorkerID())
		require.NoError(t, err)
		require.NotEmpty(t, owner)

		for i := 0; i < 100; i++ {
			id, err := gen.Next()
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	}, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, ids, 100)

	owner, err := guard.Owner(ctx, 12)
	require.NoError(t, err)
	require.Empty(t, owner)
}

// TestRun_SameWorkerIDSerialized checks two runners never hold one worker id at the same time
// TestRun_SameWorkerIDSerialized 校验两个运行器不会同时持有同一个工作节点号
func TestRun_SameWorkerIDSerialized(t *testing.T) {
	guard := xuehuaguard.NewGuard(caseRds, "xuehua-run-"+utils.NewSession(), time.Second)

	var active int32
	var peak int32
	var wg sync.WaitGroup
	errs := make([]error, 5)
	for idx := range errs {
		gen := newGenerator(t, 3)
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			run := func(ctx context.Context, gen *xuehuaid.Generator) error {
				now := atomic.AddInt32(&active, 1)
				defer atomic.AddInt32(&active, -1)
				for {
					old := atomic.LoadInt32(&peak)
					if now <= old || atomic.CompareAndSwapInt32(&peak, old, now) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				_, err := gen.Next()
				return err
			}
			errs[idx] = xuehuarun.RunWithLogger(context.Background(), guard, gen, run, 5*time.Millisecond, logging.NewNopLogger())
		}(idx)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

// TestRun_LeaseLost checks the run context is cancelled once another session takes the worker id
// TestRun_LeaseLost 校验工作节点号被其它会话占用后运行上下文被取消
func TestRun_LeaseLost(t *testing.T) {
	guard := xuehuaguard.NewGuard(caseRds, "xuehua-run-"+utils.NewSession(), 90*time.Millisecond)
	gen := newGenerator(t, 4)

	err := xuehuarun.RunWithLogger(context.Background(), guard, gen, func(ctx context.Context, gen *xuehuaid.Generator) error {
		require.NoError(t, caseRds.Set(ctx, guard.Key(gen.WorkerID()), "intruder", 0).Err())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	}, 5*time.Millisecond, logging.NewNopLogger())
	require.Error(t, err)
	require.True(t, errors.Is(err, xuehuarun.ErrLeaseLost))

	owner, err := guard.Owner(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, "intruder", owner) // not ours to release
}

func TestRun_PanicRecovered(t *testing.T) {
	guard := xuehuaguard.NewGuard(caseRds, "xuehua-run-"+utils.NewSession(), time.Second)
	gen := newGenerator(t, 5)

	err := xuehuarun.RunWithLogger(context.Background(), guard, gen, func(ctx context.Context, gen *xuehuaid.Generator) error {
		panic("boom")
	}, 5*time.Millisecond, logging.NewNopLogger())
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")

	owner, err := guard.Owner(context.Background(), 5)
	require.NoError(t, err)
	require.Empty(t, owner)
}

func TestRun_ErrorPropagated(t *testing.T) {
	guard := xuehuaguard.NewGuard(caseRds, "xuehua-run-"+utils.NewSession(), time.Second)
	gen := newGenerator(t, 6)
	wrong := errors.New("wrong")

	err := xuehuarun.RunWithLogger(context.Background(), guard, gen, func(ctx context.Context, gen *xuehuaid.Generator) error {
		return wrong
	}, 5*time.Millisecond, logging.NewNopLogger())
	require.True(t, errors.Is(err, wrong))
}

func TestRun_ContextEndsWhileWaiting(t *testing.T) {
	guard := xuehuaguard.NewGuard(caseRds, "xuehua-run-"+utils.NewSession(), time.Minute)
	gen := newGenerator(t, 8)

	held, err := guard.Claim(context.Background(), 8)
	require.NoError(t, err)
	require.NotNil(t, held)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var called bool
	err = xuehuarun.RunWithLogger(ctx, guard, gen, func(ctx context.Context, gen *xuehuaid.Generator) error {
		called = true
		return nil
	}, 5*time.Millisecond, logging.NewNopLogger())
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.False(t, called)

	success, err := guard.Release(context.Background(), held)
	require.NoError(t, err)
	require.True(t, success)
}
