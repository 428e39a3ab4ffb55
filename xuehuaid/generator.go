// Package xuehuaid: Snowflake-style 64-bit id generator with a configurable bit layout
// Packs a millisecond timestamp, a worker id and a per-millisecond sequence into one int64
// Ids from one Generator never repeat and never decrease while the clock does not go back
// Clock and sleep are injectable so the generator can run against a fake clock in tests
//
// xuehuaid: 位布局可配置的雪花算法 64 位 ID 生成器
// 将毫秒时间戳、工作节点号和毫秒内序列号打包进一个 int64
// 在时钟不回拨的前提下，同一个 Generator 生成的 ID 不重复且不递减
// 时钟和休眠均可注入，测试时可以使用假时钟
package xuehuaid

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// DefaultMaxWait bounds how long Next waits for the clock when a millisecond runs out of sequence
const DefaultMaxWait = time.Second

// noTimestamp marks a generator that has not produced any id yet
const noTimestamp int64 = -1

// Option customizes a Generator at construction
type Option func(*Generator)

// WithMaxWait sets the wait budget applied when the sequence space of a millisecond is exhausted
// WithMaxWait 设置序列号耗尽时等待时钟前进的最长时间
func WithMaxWait(d time.Duration) Option {
	return func(g *Generator) {
		g.maxWaitMilli = d.Milliseconds()
	}
}

// WithClock replaces the wall clock; fn returns epoch milliseconds
// WithClock 替换时钟，fn 返回毫秒时间戳
func WithClock(fn func() int64) Option {
	return func(g *Generator) {
		g.nowMilli = fn
	}
}

// WithSleep replaces time.Sleep in the wait loop
// WithSleep 替换等待循环中的 time.Sleep
func WithSleep(fn func(time.Duration)) Option {
	return func(g *Generator) {
		g.sleep = fn
	}
}

// WithEpoch subtracts epoch (milliseconds) from timestamps before packing them
// WithEpoch 在打包前从时间戳中减去自定义纪元（毫秒）
func WithEpoch(epoch int64) Option {
	return func(g *Generator) {
		g.epoch = epoch
	}
}

// Generator hands out unique ids for one worker id
// Next is safe to call from many goroutines; calls are served one at a time
//
// Generator 为一个工作节点生成唯一 ID
// Next 可被多个 goroutine 并发调用，调用之间串行执行
type Generator struct {
	layout        Layout
	workerID      int64  // truncated to the worker id width
	workerIDField uint64 // workerID already shifted into place
	maxSequence   uint64
	maxWaitMilli  int64
	epoch         int64
	nowMilli      func() int64
	sleep         func(time.Duration)

	mutex         sync.Mutex
	lastTimestamp int64
	lastSequence  uint64
}

// NewGenerator builds a generator with the given layout and worker id
// A worker id wider than layout.WorkerIDBits is truncated to its low bits, not rejected
//
// NewGenerator 使用给定布局和工作节点号创建生成器
// 超出位宽的工作节点号会被截断为低位，而不是报错
func NewGenerator(layout Layout, workerID int64, options ...Option) (*Generator, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	g := &Generator{
		layout:        layout,
		maxSequence:   layout.MaxSequence(),
		maxWaitMilli:  DefaultMaxWait.Milliseconds(),
		nowMilli:      func() int64 { return time.Now().UnixMilli() },
		sleep:         time.Sleep,
		lastTimestamp: noTimestamp,
	}
	for _, option := range options {
		option(g)
	}
	if g.maxWaitMilli < 0 {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "max wait %dms is negative", g.maxWaitMilli)
	}
	if g.epoch < 0 {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "epoch %d is negative", g.epoch)
	}
	if g.nowMilli == nil || g.sleep == nil {
		return nil, errors.Wrap(ErrInvalidConfiguration, "clock and sleep must not be nil")
	}

	mask := bitMask(layout.WorkerIDBits)
	g.workerID = int64(uint64(workerID) & mask)
	g.workerIDField = (uint64(workerID) & mask) << layout.workerShift()
	return g, nil
}

// NewWorkerGenerator builds a generator with DefaultLayout
// It only fails when an option is invalid
func NewWorkerGenerator(workerID int64, options ...Option) (*Generator, error) {
	return NewGenerator(DefaultLayout(), workerID, options...)
}

// Layout returns the bit layout
func (g *Generator) Layout() Layout { return g.layout }

// WorkerID returns the worker id after truncation to its width
func (g *Generator) WorkerID() int64 { return g.workerID }

// Epoch returns the custom epoch in milliseconds
func (g *Generator) Epoch() int64 { return g.epoch }

// MaxWait returns the wait budget of the overflow loop
func (g *Generator) MaxWait() time.Duration {
	return time.Duration(g.maxWaitMilli) * time.Millisecond
}

// Next returns a new id
// It fails with a *ClockBackwardsError when the clock reads earlier than the last id,
// with a *TimestampOverflowError once the clock is past what the timestamp field holds,
// and with a *SequenceOverflowError when the sequence space of a millisecond stays
// exhausted for longer than the wait budget. State only changes on success
//
// Next 返回一个新 ID
// 时钟早于上一个 ID 时返回 *ClockBackwardsError
// 时间戳超出字段位宽时返回 *TimestampOverflowError
// 序列号耗尽且等待超过上限时返回 *SequenceOverflowError
// 只有成功时才会修改内部状态
func (g *Generator) Next() (int64, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	startTime := g.nowMilli()
	now := startTime
	var timestamp int64
	var sequence uint64
	for {
		if now < g.lastTimestamp {
			return 0, &ClockBackwardsError{LastMilli: g.lastTimestamp, NowMilli: now}
		}
		if now < g.epoch {
			return 0, &ClockBackwardsError{LastMilli: g.epoch, NowMilli: now}
		}
		if now-g.epoch > g.layout.MaxTimestamp() {
			return 0, &TimestampOverflowError{NowMilli: now, Epoch: g.epoch, MaxTimestamp: g.layout.MaxTimestamp()}
		}
		if now == g.lastTimestamp {
			if candidate := g.lastSequence + 1; candidate <= g.maxSequence && candidate != 0 {
				timestamp, sequence = now, candidate
				break
			}
			g.sleep(time.Millisecond)
			if now = g.nowMilli(); now-startTime > g.maxWaitMilli {
				return 0, &SequenceOverflowError{
					Milli:       g.lastTimestamp,
					MaxSequence: g.maxSequence,
					WaitedMilli: now - startTime,
					MaxWait:     g.maxWaitMilli,
				}
			}
			continue
		}
		timestamp, sequence = now, 0
		break
	}

	g.lastTimestamp = timestamp
	g.lastSequence = sequence

	return g.pack(timestamp, sequence), nil
}

// MustNext is Next that panics on error
func (g *Generator) MustNext() int64 {
	id, err := g.Next()
	if err != nil {
		panic(err)
	}
	return id
}

// Decode splits an id produced with this generator's layout and epoch
// Decode 按本生成器的布局和纪元拆解 ID
func (g *Generator) Decode(id int64) Parts {
	return g.layout.Decode(id, g.epoch)
}

// Compose packs parts with this generator's layout and epoch
func (g *Generator) Compose(parts Parts) int64 {
	return g.layout.Compose(parts, g.epoch)
}

func (g *Generator) pack(timestamp int64, sequence uint64) int64 {
	res := (uint64(timestamp-g.epoch) & bitMask(g.layout.TimestampBits)) << g.layout.timestampShift()
	res |= g.workerIDField
	res |= sequence
	return int64(res)
}
