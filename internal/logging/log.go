// Package logging: Pluggable logger used around worker leases and id generation
// The generator core never logs; the runner and the CLI report lease and id events through this interface
//
// logging: 工作节点租约和 ID 生成外围使用的可插拔日志接口
// 生成器核心本身不打日志，运行器和命令行通过此接口记录租约及 ID 事件
package logging

import (
	"github.com/yyle88/zaplog"
	"go.uber.org/zap"
)

// Logger is what the runner and the CLI log through
// Logger 是运行器和命令行使用的日志接口
type Logger interface {
	// DebugLog logs lease retries and other noisy details
	// 记录租约重试等细节
	DebugLog(msg string, fields ...zap.Field)

	// InfoLog logs lifecycle events such as a claimed or released worker id
	// 记录工作节点号的获取和释放等生命周期事件
	InfoLog(msg string, fields ...zap.Field)

	// ErrorLog logs failures that need attention
	// 记录需要关注的失败
	ErrorLog(msg string, fields ...zap.Field)

	// WithMeta returns a logger that adds fields such as the worker id to every message
	// 返回为每条消息附加字段（如工作节点号）的日志记录器
	WithMeta(fields ...zap.Field) Logger
}

type zapLogger struct {
	logger *zap.Logger
}

// NewZapLogger wraps a zap.Logger
// NewZapLogger 包装一个 zap.Logger
func NewZapLogger(logger *zap.Logger) Logger {
	return &zapLogger{
		logger: logger,
	}
}

// NewDefaultLogger logs through zaplog, skipping the wrapper frame so callers show up in the output
// NewDefaultLogger 通过 zaplog 记录日志，跳过包装层使调用位置正确
func NewDefaultLogger() Logger {
	return NewZapLogger(zaplog.LOGS.Skip(1))
}

func (l *zapLogger) DebugLog(msg string, fields ...zap.Field) {
	l.logger.Debug(msg, fields...)
}

func (l *zapLogger) InfoLog(msg string, fields ...zap.Field) {
	l.logger.Info(msg, fields...)
}

func (l *zapLogger) ErrorLog(msg string, fields ...zap.Field) {
	l.logger.Error(msg, fields...)
}

func (l *zapLogger) WithMeta(fields ...zap.Field) Logger {
	return &zapLogger{
		logger: l.logger.With(fields...),
	}
}

// NewNopLogger discards everything, handy in tests
// NewNopLogger 丢弃所有消息，适用于测试
func NewNopLogger() Logger {
	return NewZapLogger(zap.NewNop())
}
