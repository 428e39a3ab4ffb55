package xuehuaid

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

var (
	ErrDefaultNotSetup     = errors.New("xuehuaid: default generator not set up")
	ErrDefaultAlreadySetup = errors.New("xuehuaid: default generator already set up")
)

var defaultGenerator atomic.Pointer[Generator]

// SetupDefault installs g as the process-wide generator used by NextID
// It can be called once; there is no implicit default, so the worker id stays visible at the call site
//
// SetupDefault 将 g 设置为 NextID 使用的进程级生成器
// 只能调用一次，没有隐式默认值，工作节点号在调用处清晰可见
func SetupDefault(g *Generator) error {
	if g == nil {
		return errors.Wrap(ErrInvalidConfiguration, "default generator is nil")
	}
	if !defaultGenerator.CompareAndSwap(nil, g) {
		return ErrDefaultAlreadySetup
	}
	return nil
}

// Default returns the generator installed by SetupDefault, or nil
func Default() *Generator {
	return defaultGenerator.Load()
}

// NextID calls Next on the default generator
// NextID 使用默认生成器生成 ID
func NextID() (int64, error) {
	g := defaultGenerator.Load()
	if g == nil {
		return 0, ErrDefaultNotSetup
	}
	return g.Next()
}
