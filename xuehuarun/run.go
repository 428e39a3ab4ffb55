// Package xuehuarun: Runs id generation while holding the worker id lease
// Claims the generator's worker id with retry, keeps the lease alive in the background,
// cancels the work when the lease is lost, recovers panics and always gives the lease back
//
// xuehuarun: 在持有工作节点号租约期间运行 ID 生成
// 带重试地占有生成器的工作节点号，后台续期租约，
// 租约丢失时取消任务，恢复 panic，并保证归还租约
package xuehuarun

import (
	"context"
	"sync"
	"time"

	"github.com/go-xlan/xuehua-go-id/internal/logging"
	"github.com/go-xlan/xuehua-go-id/internal/utils"
	"github.com/go-xlan/xuehua-go-id/xuehuaguard"
	"github.com/go-xlan/xuehua-go-id/xuehuaid"
	"github.com/pkg/errors"
	"github.com/yyle88/erero"
	"github.com/yyle88/must"
	"go.uber.org/zap"
)

// ErrLeaseLost is the cancel cause of the run context when the worker id lease could not be kept
// ErrLeaseLost 是租约无法保持时运行上下文的取消原因
var ErrLeaseLost = errors.New("xuehuarun: worker id lease lost")

// Run executes run while gen's worker id is held in the guard
// Returns an error only when ctx ends before the claim succeeds, when run fails or when the lease is lost
//
// Run 在守护中持有 gen 的工作节点号期间执行 run
// 仅在占有成功前 ctx 结束、run 失败或租约丢失时返回错误
func Run(ctx context.Context, guard *xuehuaguard.Guard, gen *xuehuaid.Generator, run func(ctx context.Context, gen *xuehuaid.Generator) error, sleep time.Duration) error {
	return RunWithLogger(ctx, guard, gen, run, sleep, logging.NewDefaultLogger())
}

// RunWithLogger is Run with a custom logger
// RunWithLogger 是使用自定义日志记录器的 Run
func RunWithLogger(ctx context.Context, guard *xuehuaguard.Guard, gen *xuehuaid.Generator, run func(ctx context.Context, gen *xuehuaid.Generator) error, sleep time.Duration, logger logging.Logger) error {
	must.Nice(guard)
	must.Nice(gen)
	must.Nice(sleep)

	logger = logger.WithMeta(zap.Int64("worker_id", gen.WorkerID()))
	session := utils.NewSession()

	var lease *xuehuaguard.Lease
	if err := retryingClaim(ctx, func(ctx context.Context) (bool, error) {
		res, err := guard.ClaimWithSession(ctx, gen.WorkerID(), session)
		if err != nil {
			return false, erero.Wro(err)
		}
		lease = res
		return res != nil, nil
	}, sleep, logger); err != nil {
		return erero.Wro(err)
	}
	logger.InfoLog("worker id claimed", zap.String("session", session), zap.Time("expire", lease.Expire()))

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	keeper := newLeaseKeeper(guard, lease, logger)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		keeper.keepAlive(runCtx, cancel)
	}()

	defer func() {
		retryingRelease(ctx, guard, keeper.current(), sleep, logger)
	}()

	err := safeRun(runCtx, gen, run)
	cancel(nil)
	wg.Wait()

	if cause := context.Cause(runCtx); errors.Is(cause, ErrLeaseLost) {
		return erero.Wro(cause)
	}
	if err != nil {
		return erero.Wro(err)
	}
	return nil
}

// retryingClaim keeps trying until the claim succeeds or ctx ends
// retryingClaim 持续尝试直到占有成功或 ctx 结束
func retryingClaim(ctx context.Context, run func(ctx context.Context) (bool, error), sleep time.Duration, logger logging.Logger) error {
	for {
		if err := ctx.Err(); err != nil {
			return erero.Wro(err)
		}
		success, err := run(ctx)
		if err != nil {
			logger.DebugLog("claim failed", zap.Error(err))
		} else if success {
			return nil
		} else {
			logger.DebugLog("worker id busy, waiting")
		}
		select {
		case <-ctx.Done():
			return erero.Wro(ctx.Err())
		case <-time.After(sleep):
		}
	}
}

// leaseKeeper renews the lease every third of the ttl
// leaseKeeper 每隔三分之一 ttl 续期一次租约
type leaseKeeper struct {
	guard  *xuehuaguard.Guard
	logger logging.Logger

	mutex sync.Mutex
	lease *xuehuaguard.Lease
}

func newLeaseKeeper(guard *xuehuaguard.Guard, lease *xuehuaguard.Lease, logger logging.Logger) *leaseKeeper {
	return &leaseKeeper{guard: guard, lease: lease, logger: logger}
}

func (k *leaseKeeper) current() *xuehuaguard.Lease {
	k.mutex.Lock()
	defer k.mutex.Unlock()
	return k.lease
}

func (k *leaseKeeper) keepAlive(ctx context.Context, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(max(k.guard.TTL()/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		lease := k.current()
		renewed, err := k.guard.Renew(ctx, lease)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if time.Now().After(lease.Expire()) {
				k.logger.ErrorLog("lease expired while renewal kept failing", zap.Error(err))
				cancel(ErrLeaseLost)
				return
			}
			k.logger.DebugLog("renew failed, retrying", zap.Error(err))
			continue
		}
		if renewed == nil {
			k.logger.ErrorLog("worker id taken by another session", zap.String("session", lease.Session()))
			cancel(ErrLeaseLost)
			return
		}
		k.mutex.Lock()
		k.lease = renewed
		k.mutex.Unlock()
	}
}

// retryingRelease retries on errors until the lease would have expired anyway
// A false result means another session owns the worker id now, so there is nothing left to give back
//
// retryingRelease 出错时重试，直到租约本身已过期
// 返回 false 表示节点号已被其它会话持有，无需再归还
func retryingRelease(ctx context.Context, guard *xuehuaguard.Guard, lease *xuehuaguard.Lease, sleep time.Duration, logger logging.Logger) {
	for {
		success, err := releaseOnce(ctx, guard, lease, sleep)
		if err == nil {
			if success {
				logger.InfoLog("worker id released")
			} else {
				logger.DebugLog("worker id already held by another session")
			}
			return
		}
		if time.Now().After(lease.Expire()) {
			logger.ErrorLog("giving up release, lease expired", zap.Error(err))
			return
		}
		logger.DebugLog("release failed, retrying", zap.Error(err))
		time.Sleep(sleep)
	}
}

func releaseOnce(ctx context.Context, guard *xuehuaguard.Guard, lease *xuehuaguard.Lease, sleep time.Duration) (bool, error) {
	ctx, can := safeCtx(ctx, max(sleep, time.Second*10))
	defer can()

	success, err := guard.Release(ctx, lease)
	if err != nil {
		return false, erero.Wro(err)
	}
	return success, nil
}

// safeCtx still works when the parent context is already done, so the lease is given back on cancellation
// safeCtx 在父上下文已结束时仍可使用，保证取消后也能归还租约
func safeCtx(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if ctx.Err() != nil {
		return context.WithTimeout(context.Background(), duration)
	}
	return context.WithCancel(ctx)
}

// safeRun turns a panic inside run into an error
// safeRun 将 run 中的 panic 转换为错误
func safeRun(ctx context.Context, gen *xuehuaid.Generator, run func(ctx context.Context, gen *xuehuaid.Generator) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			switch erx := rec.(type) {
			case error:
				err = erx
			default:
				err = erero.Errorf("recovered from panic: %v", rec)
			}
		}
	}()
	return run(ctx, gen)
}
