// Package xuehuaconf: Deployment settings for a generator and its worker id guard
// Reads YAML or TOML documents and turns them into generator options and redis options
// Blank redis settings fall back to REDIS_ADDR, REDIS_PASSWORD and REDIS_DB
//
// xuehuaconf: 生成器及其工作节点号守护的部署配置
// 读取 YAML 或 TOML 文档，转换为生成器选项和 redis 选项
// redis 配置留空时回退到 REDIS_ADDR、REDIS_PASSWORD 和 REDIS_DB 环境变量
package xuehuaconf

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-xlan/xuehua-go-id/xuehuaguard"
	"github.com/go-xlan/xuehua-go-id/xuehuaid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/yyle88/erero"
	"gopkg.in/yaml.v3"
)

// Config is the whole settings document
// Config 是完整的配置文档
type Config struct {
	WorkerID     int64        `yaml:"worker_id" toml:"worker_id"`
	Epoch        int64        `yaml:"epoch" toml:"epoch"`
	MaxWaitMilli int64        `yaml:"max_wait_ms" toml:"max_wait_ms"`
	Layout       LayoutConfig `yaml:"layout" toml:"layout"`
	Guard        GuardConfig  `yaml:"guard" toml:"guard"`
}

// LayoutConfig mirrors xuehuaid.Layout
type LayoutConfig struct {
	ReservedBits  uint8 `yaml:"reserved_bits" toml:"reserved_bits"`
	TimestampBits uint8 `yaml:"timestamp_bits" toml:"timestamp_bits"`
	WorkerIDBits  uint8 `yaml:"worker_id_bits" toml:"worker_id_bits"`
}

// GuardConfig holds the redis lease settings
// GuardConfig 保存 redis 租约配置
type GuardConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	Prefix        string `yaml:"prefix" toml:"prefix"`
	TTLMilli      int64  `yaml:"ttl_ms" toml:"ttl_ms"`
	RedisAddr     string `yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword string `yaml:"redis_password" toml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" toml:"redis_db"`
}

// Default returns the settings used for anything a document leaves out
// Default 返回文档未指定时使用的默认配置
func Default() *Config {
	layout := xuehuaid.DefaultLayout()
	return &Config{
		MaxWaitMilli: xuehuaid.DefaultMaxWait.Milliseconds(),
		Layout: LayoutConfig{
			ReservedBits:  layout.ReservedBits,
			TimestampBits: layout.TimestampBits,
			WorkerIDBits:  layout.WorkerIDBits,
		},
		Guard: GuardConfig{
			Prefix:   "xuehua:worker",
			TTLMilli: 10000,
		},
	}
}

// LoadYAML parses a YAML document over Default, rejecting unknown keys
func LoadYAML(data []byte) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrapf(xuehuaid.ErrInvalidConfiguration, "yaml: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOML parses a TOML document over Default, rejecting unknown keys
func LoadTOML(data []byte) (*Config, error) {
	cfg := Default()
	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, erero.Wro(err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Wrapf(xuehuaid.ErrInvalidConfiguration, "unknown keys %v", undecoded)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile picks the format by extension: .yaml, .yml or .toml
// LoadFile 按扩展名选择格式：.yaml、.yml 或 .toml
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, erero.Wro(err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return LoadYAML(data)
	case ".toml":
		return LoadTOML(data)
	default:
		return nil, erero.Errorf("unsupported config extension %q", ext)
	}
}

// Validate checks everything NewGenerator and NewGuard would reject
func (c *Config) Validate() error {
	if err := c.GeneratorLayout().Validate(); err != nil {
		return err
	}
	if c.MaxWaitMilli < 0 {
		return errors.Wrapf(xuehuaid.ErrInvalidConfiguration, "max_wait_ms %d is negative", c.MaxWaitMilli)
	}
	if c.Epoch < 0 {
		return errors.Wrapf(xuehuaid.ErrInvalidConfiguration, "epoch %d is negative", c.Epoch)
	}
	if c.Guard.Enabled {
		if c.Guard.Prefix == "" {
			return errors.Wrap(xuehuaid.ErrInvalidConfiguration, "guard prefix is blank")
		}
		if c.Guard.TTLMilli <= 0 {
			return errors.Wrapf(xuehuaid.ErrInvalidConfiguration, "guard ttl_ms %d must be positive", c.Guard.TTLMilli)
		}
	}
	return nil
}

// GeneratorLayout converts the layout section
func (c *Config) GeneratorLayout() xuehuaid.Layout {
	return xuehuaid.Layout{
		ReservedBits:  c.Layout.ReservedBits,
		TimestampBits: c.Layout.TimestampBits,
		WorkerIDBits:  c.Layout.WorkerIDBits,
	}
}

// Options converts the generator settings; extra options are applied last
// Options 转换生成器配置，extra 选项最后生效
func (c *Config) Options(extra ...xuehuaid.Option) []xuehuaid.Option {
	options := []xuehuaid.Option{
		xuehuaid.WithMaxWait(time.Duration(c.MaxWaitMilli) * time.Millisecond),
		xuehuaid.WithEpoch(c.Epoch),
	}
	return append(options, extra...)
}

// NewGenerator builds the configured generator
// NewGenerator 创建配置所描述的生成器
func (c *Config) NewGenerator(extra ...xuehuaid.Option) (*xuehuaid.Generator, error) {
	return xuehuaid.NewGenerator(c.GeneratorLayout(), c.WorkerID, c.Options(extra...)...)
}

// RedisOptions returns the guard's redis options with environment fallback
// RedisOptions 返回守护使用的 redis 选项，支持环境变量回退
func (c *Config) RedisOptions() *redis.Options {
	addr := c.Guard.RedisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		addr = "localhost:6379"
	}
	password := c.Guard.RedisPassword
	if password == "" {
		password = os.Getenv("REDIS_PASSWORD")
	}
	db := c.Guard.RedisDB
	if db == 0 {
		db = envInt("REDIS_DB", 0)
	}
	return &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
}

// NewGuard builds the worker id guard on rds
func (c *Config) NewGuard(rds redis.UniversalClient) *xuehuaguard.Guard {
	return xuehuaguard.NewGuard(rds, c.Guard.Prefix, time.Duration(c.Guard.TTLMilli)*time.Millisecond)
}

func envInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	num, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return num
}
