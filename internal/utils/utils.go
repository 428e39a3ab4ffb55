// Package utils: Small helpers shared by the guard, the runner, the demos and the CLI
// Provides hex session ids used as lease owners and fixed-width binary rendering of id fields
//
// utils: 守护、运行器、演示和命令行共用的小工具
// 提供作为租约持有者的十六进制会话 ID，以及 ID 字段的定宽二进制渲染
package utils

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NewSession returns a random UUID v4 as 32 hex characters
// The value identifies one lease holder on the worker id key
//
// NewSession 返回 32 个十六进制字符的随机 UUID v4
// 用于标识工作节点号键上的一个租约持有者
func NewSession() string {
	session := uuid.New()
	return hex.EncodeToString(session[:])
}

// FormatBits renders the low width bits of v as a zero-padded binary string
// FormatBits 将 v 的低 width 位渲染为补零的二进制字符串
func FormatBits(v uint64, width uint8) string {
	if width == 0 {
		return ""
	}
	if width < 64 {
		v &= (uint64(1) << width) - 1
	}
	s := strconv.FormatUint(v, 2)
	if pad := int(width) - len(s); pad > 0 {
		s = strings.Repeat("0", pad) + s
	}
	return s
}
