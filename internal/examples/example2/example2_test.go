// Package example2 demonstrates a worker id held in redis while ids are generated
// Shows guarded runs competing for one worker id, a process-wide default and metrics
//
// example2 演示生成 ID 期间在 redis 中持有工作节点号
// 展示多个受守护的运行竞争同一节点号、进程级默认生成器以及指标
package example2

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-xlan/xuehua-go-id/internal/utils"
	"github.com/go-xlan/xuehua-go-id/xuehuaguard"
	"github.com/go-xlan/xuehua-go-id/xuehuaid"
	"github.com/go-xlan/xuehua-go-id/xuehuametrics"
	"github.com/go-xlan/xuehua-go-id/xuehuarun"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/yyle88/must"
	"github.com/yyle88/rese"
)

var caseRedisClient redis.UniversalClient

func TestMain(m *testing.M) {
	miniRedis := rese.P1(miniredis.Run())
	defer miniRedis.Close()

	redisClient := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{miniRedis.Addr()},
		PoolSize:     10,
		MinIdleConns: 10,
	})
	must.Done(redisClient.Ping(context.Background()).Err())

	caseRedisClient = redisClient

	m.Run()
}

// TestGuardedRuns starts several processes configured with the same worker id
// They take turns, so the ids they produce never collide
//
// TestGuardedRuns 启动多个配置了相同工作节点号的进程
// 它们轮流执行，因此产生的 ID 不会冲突
func TestGuardedRuns(t *testing.T) {
	guard := xuehuaguard.NewGuard(caseRedisClient, "example2-"+utils.NewSession(), time.Second)

	var mutex sync.Mutex
	seen := map[int64]struct{}{}
	var wg sync.WaitGroup
	errs := make([]error, 3)
	for idx := range errs {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			gen := rese.P1(xuehuaid.NewWorkerGenerator(9))
			err := xuehuarun.Run(context.Background(), guard, gen, func(ctx context.Context, gen *xuehuaid.Generator) error {
				t.Logf("process %d holds worker id %d", idx, gen.WorkerID())
				for i := 0; i < 50; i++ {
					id, err := gen.Next()
					if err != nil {
						return err
					}
					mutex.Lock()
					seen[id] = struct{}{}
					mutex.Unlock()
				}
				time.Sleep(2 * time.Millisecond) // the next holder starts in a later millisecond
				return nil
			}, 5*time.Millisecond)
			errs[idx] = err
		}(idx)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, seen, 150)
}

// TestDefaultWithMetrics installs an explicit default generator and wraps it with metrics
// TestDefaultWithMetrics 显式安装默认生成器并用指标包装
func TestDefaultWithMetrics(t *testing.T) {
	gen := rese.P1(xuehuaid.NewWorkerGenerator(3))
	require.NoError(t, xuehuaid.SetupDefault(gen))

	id, err := xuehuaid.NextID()
	require.NoError(t, err)
	require.Equal(t, int64(3), xuehuaid.Default().Decode(id).WorkerID)

	reg := prometheus.NewRegistry()
	source := xuehuametrics.NewInstrumented(xuehuaid.Default(), reg, "example", 3)
	for i := 0; i < 5; i++ {
		_, err := source.Next()
		require.NoError(t, err)
	}
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP example_idgen_ids_generated_total Total number of ids handed out
# TYPE example_idgen_ids_generated_total counter
example_idgen_ids_generated_total{worker_id="3"} 5
`), "example_idgen_ids_generated_total"))
}
