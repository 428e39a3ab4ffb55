// Package xuehuaguard: Redis lease that keeps two live processes from using the same worker id
// Worker ids are still assigned out of band; the guard only refuses a second holder of the same id
// Each holder owns the key "<prefix>:<workerID>" with a random session value and a TTL
//
// xuehuaguard: 基于 Redis 租约，防止两个存活进程使用相同的工作节点号
// 工作节点号仍由外部分配，守护只负责拒绝同一节点号的第二个持有者
// 每个持有者以随机会话值和 TTL 占有键 "<prefix>:<workerID>"
package xuehuaguard

import (
	"context"
	"reflect"
	"strconv"
	"time"

	"github.com/go-xlan/xuehua-go-id/internal/utils"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/yyle88/erero"
	"github.com/yyle88/must"
	"github.com/yyle88/zaplog"
	"go.uber.org/zap"
)

// Guard claims worker ids in redis
// Guard 在 redis 中占有工作节点号
type Guard struct {
	redisClient redis.UniversalClient
	prefix      string
	ttl         time.Duration
}

// NewGuard panics on a nil client, a blank prefix or a zero ttl
// NewGuard 在客户端为空、前缀为空或 ttl 为零时 panic
func NewGuard(rds redis.UniversalClient, prefix string, ttl time.Duration) *Guard {
	return &Guard{
		redisClient: must.Nice(rds),
		prefix:      must.Nice(prefix),
		ttl:         must.Nice(ttl),
	}
}

// TTL returns the lease duration
func (o *Guard) TTL() time.Duration {
	return o.ttl
}

// Key returns the redis key of a worker id
func (o *Guard) Key(workerID int64) string {
	return o.prefix + ":" + strconv.FormatInt(workerID, 10)
}

const (
	// the same session may claim again, which extends the ttl
	// 同一会话可以再次占有，相当于续期
	commandClaim = `local owner = redis.call("GET", KEYS[1])
if owner == ARGV[1] then
    redis.call("PEXPIRE", KEYS[1], ARGV[2])
    return 1
elseif owner == false then
    redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
    return 1
end
return 0`
)

func (o *Guard) claim(ctx context.Context, workerID int64, session string) (bool, error) {
	must.OK(session)

	key := o.Key(workerID)
	LOG := zaplog.ZAP.NewLog("action", "claim", zap.String("k", key), zap.String("v", session))

	resp, err := o.redisClient.Eval(ctx, commandClaim, []string{key}, []string{session, strconv.FormatInt(o.ttl.Milliseconds(), 10)}).Result()
	if err != nil {
		LOG.Error("eval failed", zap.Error(err))
		return false, erero.Wro(err)
	}

	num, ok := resp.(int64)
	if !ok {
		LOG.Error("unexpected reply type", zap.Any("resp", resp), zap.String("resp_type", reflect.TypeOf(resp).String()))
		return false, nil
	}
	if num != 1 {
		LOG.Debug("worker id held by another session")
		return false, nil
	}
	LOG.Debug("worker id claimed")
	return true, nil
}

const (
	// 1: deleted, 2: key already gone, 3: held by another session
	// 1：已删除，2：键已不存在，3：被其它会话持有
	commandRelease = `local owner = redis.call("GET", KEYS[1])
if owner == false then
    return 2
elseif owner == ARGV[1] then
    redis.call("DEL", KEYS[1])
    return 1
end
return 3`
)

func (o *Guard) release(ctx context.Context, workerID int64, session string) (bool, error) {
	must.OK(session)

	key := o.Key(workerID)
	LOG := zaplog.ZAP.NewLog("action", "release", zap.String("k", key), zap.String("v", session))

	resp, err := o.redisClient.Eval(ctx, commandRelease, []string{key}, []string{session}).Result()
	if err != nil {
		LOG.Error("eval failed", zap.Error(err))
		return false, erero.Wro(err)
	}

	num, ok := resp.(int64)
	if !ok {
		LOG.Debug("unexpected reply type", zap.Any("resp", resp), zap.String("resp_type", reflect.TypeOf(resp).String()))
		return false, nil
	}
	switch num {
	case 1:
		LOG.Debug("worker id released")
		return true, nil
	case 2: // the lease expired before release, nobody holds the id any more
		LOG.Debug("lease already expired")
		return true, nil
	case 3:
		LOG.Debug("worker id held by another session")
		return false, nil
	default:
		LOG.Debug("unexpected reply", zap.Int64("num", num))
		return false, nil
	}
}

// Lease is a successful claim on one worker id
// Lease 表示对一个工作节点号的成功占有
type Lease struct {
	key      string // redis key of the guard that granted it
	workerID int64
	session  string
	expire   time.Time // conservative: ttl minus the time spent claiming
}

func (s *Lease) Key() string {
	return s.key
}

func (s *Lease) WorkerID() int64 {
	return s.workerID
}

func (s *Lease) Session() string {
	return s.session
}

func (s *Lease) Expire() time.Time {
	return s.expire
}

// ClaimWithSession claims workerID for session; claiming again with the same session extends the lease
// Returns a nil lease without error when another session holds the worker id
//
// ClaimWithSession 以 session 占有 workerID，同一会话再次占有即续期
// 被其它会话占有时返回 nil 租约且无错误
func (o *Guard) ClaimWithSession(ctx context.Context, workerID int64, session string) (*Lease, error) {
	var startTime = time.Now()
	if ok, err := o.claim(ctx, workerID, session); err != nil {
		return nil, erero.Wro(err)
	} else if !ok {
		return nil, nil
	}
	now := time.Now()
	remain := o.ttl - time.Since(startTime)
	return &Lease{key: o.Key(workerID), workerID: workerID, session: session, expire: now.Add(remain)}, nil
}

// Claim claims workerID with a fresh random session
// Claim 使用新的随机会话占有 workerID
func (o *Guard) Claim(ctx context.Context, workerID int64) (*Lease, error) {
	return o.ClaimWithSession(ctx, workerID, utils.NewSession())
}

// Renew extends a lease; nil means it was lost to another session
// Panics when the lease was granted by a guard with another prefix
// Renew 续期租约，返回 nil 表示已被其它会话抢占
func (o *Guard) Renew(ctx context.Context, lease *Lease) (*Lease, error) {
	must.Equals(lease.key, o.Key(lease.workerID))
	return o.ClaimWithSession(ctx, lease.workerID, lease.session)
}

// Release frees the worker id when lease still owns it
// Release 在租约仍持有时释放工作节点号
func (o *Guard) Release(ctx context.Context, lease *Lease) (bool, error) {
	must.Equals(lease.key, o.Key(lease.workerID))
	return o.release(ctx, lease.workerID, lease.session)
}

// Owner returns the session holding workerID, or "" when it is free
// Owner 返回持有 workerID 的会话，空闲时返回空串
func (o *Guard) Owner(ctx context.Context, workerID int64) (string, error) {
	session, err := o.redisClient.Get(ctx, o.Key(workerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", erero.Wro(err)
	}
	return session, nil
}
