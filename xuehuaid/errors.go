package xuehuaid

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidConfiguration is returned by constructors when the layout or options are out of range
	// ErrInvalidConfiguration 表示构造时位宽或选项越界
	ErrInvalidConfiguration = errors.New("xuehuaid: invalid configuration")

	// ErrClockMovedBackwards matches every *ClockBackwardsError
	// ErrClockMovedBackwards 匹配所有 *ClockBackwardsError
	ErrClockMovedBackwards = errors.New("xuehuaid: clock moved backwards")

	// ErrSequenceOverflow matches every *SequenceOverflowError
	// ErrSequenceOverflow 匹配所有 *SequenceOverflowError
	ErrSequenceOverflow = errors.New("xuehuaid: sequence overflow")

	// ErrTimestampOverflow matches every *TimestampOverflowError
	// ErrTimestampOverflow 匹配所有 *TimestampOverflowError
	ErrTimestampOverflow = errors.New("xuehuaid: timestamp overflow")
)

// ClockBackwardsError reports a clock reading earlier than the last committed timestamp
// The generator state is left as it was, so a later call may succeed once the clock catches up
//
// ClockBackwardsError 表示时钟读数早于上次提交的时间戳
// 生成器状态保持不变，时钟追上后可以再次调用
type ClockBackwardsError struct {
	LastMilli int64 // last committed timestamp (or the epoch when read before it)
	NowMilli  int64 // offending clock reading
}

// BackwardsMilli returns the magnitude of the backward jump
func (e *ClockBackwardsError) BackwardsMilli() int64 {
	return e.LastMilli - e.NowMilli
}

func (e *ClockBackwardsError) Error() string {
	return fmt.Sprintf("xuehuaid: clock moved backwards by %dms (last=%d now=%d)", e.BackwardsMilli(), e.LastMilli, e.NowMilli)
}

func (e *ClockBackwardsError) Is(target error) bool {
	return target == ErrClockMovedBackwards
}

// SequenceOverflowError reports that the sequence space stayed exhausted past the wait budget
// SequenceOverflowError 表示序列号耗尽且等待超过了上限
type SequenceOverflowError struct {
	Milli       int64 // millisecond whose sequence space ran out
	MaxSequence uint64
	WaitedMilli int64
	MaxWait     int64
}

func (e *SequenceOverflowError) Error() string {
	return fmt.Sprintf("xuehuaid: sequence overflow at %d (max sequence %d), waited %dms over budget %dms", e.Milli, e.MaxSequence, e.WaitedMilli, e.MaxWait)
}

func (e *SequenceOverflowError) Is(target error) bool {
	return target == ErrSequenceOverflow
}

// TimestampOverflowError reports a clock reading whose offset from the epoch no longer fits the timestamp field
// Packing it would wrap around and repeat earlier ids, so the generator refuses instead
//
// TimestampOverflowError 表示时钟相对纪元的偏移已超出时间戳字段位宽
// 继续打包会回绕并产生重复 ID，因此直接报错
type TimestampOverflowError struct {
	NowMilli     int64
	Epoch        int64
	MaxTimestamp int64 // largest offset the field holds
}

func (e *TimestampOverflowError) Error() string {
	return fmt.Sprintf("xuehuaid: timestamp %d is %dms past epoch %d, field holds at most %d", e.NowMilli, e.NowMilli-e.Epoch, e.Epoch, e.MaxTimestamp)
}

func (e *TimestampOverflowError) Is(target error) bool {
	return target == ErrTimestampOverflow
}
