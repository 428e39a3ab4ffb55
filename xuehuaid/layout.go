package xuehuaid

import (
	"time"

	"github.com/pkg/errors"
)

// Bit-width limits of a Layout
// Layout 各字段位宽的上限
const (
	MaxReservedBits  = 61
	MaxTimestampBits = 61
	MaxWorkerIDBits  = 32
	// maxUsedBits is the most bits reserved+timestamp+worker may take together
	maxUsedBits = 63
)

// Layout describes how the 64 bits of an id are split, from high to low:
// [reserved][timestamp][worker id][sequence]
// The sequence takes whatever bits are left over
//
// Layout 描述 64 位 ID 的切分方式，从高位到低位依次为：
// [保留位][时间戳][工作节点][序列号]，序列号占用剩余全部位
type Layout struct {
	ReservedBits  uint8
	TimestampBits uint8
	WorkerIDBits  uint8
}

// DefaultLayout returns the classic 1/41/10/12 layout
// DefaultLayout 返回经典的 1/41/10/12 布局
func DefaultLayout() Layout {
	return Layout{ReservedBits: 1, TimestampBits: 41, WorkerIDBits: 10}
}

// SequenceBits returns the width of the sequence field
func (l Layout) SequenceBits() uint8 {
	return 64 - l.ReservedBits - l.TimestampBits - l.WorkerIDBits
}

// Validate reports ErrInvalidConfiguration when a width is out of range
// Validate 在位宽越界时返回 ErrInvalidConfiguration
func (l Layout) Validate() error {
	if l.ReservedBits > MaxReservedBits {
		return errors.Wrapf(ErrInvalidConfiguration, "reserved bits %d exceeds %d", l.ReservedBits, MaxReservedBits)
	}
	if l.TimestampBits > MaxTimestampBits {
		return errors.Wrapf(ErrInvalidConfiguration, "timestamp bits %d exceeds %d", l.TimestampBits, MaxTimestampBits)
	}
	if l.WorkerIDBits > MaxWorkerIDBits {
		return errors.Wrapf(ErrInvalidConfiguration, "worker id bits %d exceeds %d", l.WorkerIDBits, MaxWorkerIDBits)
	}
	if used := int(l.ReservedBits) + int(l.TimestampBits) + int(l.WorkerIDBits); used > maxUsedBits {
		return errors.Wrapf(ErrInvalidConfiguration, "reserved+timestamp+worker id bits %d exceeds %d", used, maxUsedBits)
	}
	return nil
}

// MaxSequence returns 2^SequenceBits - 1
func (l Layout) MaxSequence() uint64 {
	return bitMask(l.SequenceBits())
}

// MaxWorkerID returns the largest worker id kept without truncation
func (l Layout) MaxWorkerID() int64 {
	return int64(bitMask(l.WorkerIDBits))
}

// MaxTimestamp returns the largest timestamp offset (ms since the epoch) the field holds
func (l Layout) MaxTimestamp() int64 {
	return int64(bitMask(l.TimestampBits))
}

func (l Layout) workerShift() uint8 {
	return l.SequenceBits()
}

func (l Layout) timestampShift() uint8 {
	return l.SequenceBits() + l.WorkerIDBits
}

// Parts holds the decoded fields of one id
// Parts 保存一个 ID 解码后的各字段
type Parts struct {
	Timestamp int64 // epoch milliseconds, the configured epoch already added back
	WorkerID  int64
	Sequence  int64
}

// Time converts the timestamp field into a time.Time
func (p Parts) Time() time.Time {
	return time.UnixMilli(p.Timestamp)
}

// Compose packs parts into an id. Fields wider than their width are masked
// Compose 将各字段打包为 ID，超出位宽的部分会被截断
func (l Layout) Compose(parts Parts, epoch int64) int64 {
	res := (uint64(parts.Timestamp-epoch) & bitMask(l.TimestampBits)) << l.timestampShift()
	res |= (uint64(parts.WorkerID) & bitMask(l.WorkerIDBits)) << l.workerShift()
	res |= uint64(parts.Sequence) & l.MaxSequence()
	return int64(res)
}

// Decode splits an id back into its fields
// Decode 将 ID 拆解回各个字段
func (l Layout) Decode(id int64, epoch int64) Parts {
	u := uint64(id)
	return Parts{
		Timestamp: int64((u>>l.timestampShift())&bitMask(l.TimestampBits)) + epoch,
		WorkerID:  int64((u >> l.workerShift()) & bitMask(l.WorkerIDBits)),
		Sequence:  int64(u & l.MaxSequence()),
	}
}

// bitMask returns a mask with the low n bits set. Shifts of 64 yield 0 in Go, so n=64 gives all ones
func bitMask(n uint8) uint64 {
	return (uint64(1) << n) - 1
}
