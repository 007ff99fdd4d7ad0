package aocs

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is the file form of the table options.
//
//	[storage]
//	compression = "zstd"
//	compress-level = 3
//	block-size = 32768
//	checksums = true
//	target-strategy = "auto"
//
//	[cache]
//	block-cache-size = 67108864
//	mmap = true
//
//	[resources]
//	memory-limit = 268435456
//	io-limit = 0
//	background-workers = 4
//
//	[log]
//	level = "info"
//	format = "json"
//	filename = "/var/log/aocs/table.log"
//	max-size = 100
type Config struct {
	Storage   StorageConfig   `toml:"storage"`
	Cache     CacheConfig     `toml:"cache"`
	Resources ResourcesConfig `toml:"resources"`
	Log       LogConfig       `toml:"log"`
}

// StorageConfig holds the defaults of newly created tables.
type StorageConfig struct {
	Compression    string `toml:"compression"`
	CompressLevel  int    `toml:"compress-level"`
	BlockSize      int    `toml:"block-size"`
	Checksums      *bool  `toml:"checksums"`
	TargetStrategy string `toml:"target-strategy"`
	UniqueChecks   bool   `toml:"unique-checks"`
	RelFileNode    uint32 `toml:"relfilenode"`
}

// CacheConfig configures the block cache and the mmap read path.
type CacheConfig struct {
	BlockCacheSize int64 `toml:"block-cache-size"`
	Mmap           bool  `toml:"mmap"`
}

// ResourcesConfig bounds memory, IO rate and background workers.
type ResourcesConfig struct {
	MemoryLimit       int64 `toml:"memory-limit"`
	IOLimit           int64 `toml:"io-limit"`
	BackgroundWorkers int64 `toml:"background-workers"`
}

// LogConfig configures logging. Logs go to stderr unless Filename is set,
// in which case the file is rotated.
type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Filename   string `toml:"filename"`
	MaxSize    int    `toml:"max-size"`
	MaxDays    int    `toml:"max-days"`
	MaxBackups int    `toml:"max-backups"`
}

// LoadConfig reads a TOML config file.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("aocs: load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown config key %q in %s", ErrInvalidArgument, undecoded[0].String(), path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that options cannot reject later.
func (c *Config) Validate() error {
	if _, err := parseTargetStrategy(c.Storage.TargetStrategy); err != nil {
		return err
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalidArgument, c.Log.Format)
	}
	return nil
}

// Options converts the config to table options. The logger is not
// included; see Logger.
func (c *Config) Options() []Option {
	strategy, _ := parseTargetStrategy(c.Storage.TargetStrategy)
	opts := []Option{
		WithBlockCacheSize(c.Cache.BlockCacheSize),
		WithMmapReads(c.Cache.Mmap),
		WithMemoryLimit(c.Resources.MemoryLimit),
		WithIOLimit(c.Resources.IOLimit),
		WithBackgroundWorkers(c.Resources.BackgroundWorkers),
		WithTargetStrategy(strategy),
		WithUniqueChecks(c.Storage.UniqueChecks),
	}
	if c.Storage.Compression != "" {
		opts = append(opts, WithCompression(c.Storage.Compression, c.Storage.CompressLevel))
	}
	if c.Storage.BlockSize != 0 {
		opts = append(opts, WithBlockSize(c.Storage.BlockSize))
	}
	if c.Storage.Checksums != nil {
		opts = append(opts, WithChecksums(*c.Storage.Checksums))
	}
	if c.Storage.RelFileNode != 0 {
		opts = append(opts, WithRelFileNode(c.Storage.RelFileNode))
	}
	return opts
}

// Logger builds the configured logger. The returned closer flushes and
// closes the log file; it is a no-op for stderr.
func (c *Config) Logger() (*Logger, io.Closer, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	if c.Log.Filename == "" {
		return newWriterLogger(os.Stderr, strings.ToLower(c.Log.Format), level), nopCloser{}, nil
	}
	w := &lumberjack.Logger{
		Filename:   c.Log.Filename,
		MaxSize:    c.Log.MaxSize,
		MaxAge:     c.Log.MaxDays,
		MaxBackups: c.Log.MaxBackups,
	}
	return newWriterLogger(w, strings.ToLower(c.Log.Format), level), w, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalidArgument, s)
	}
	return level, nil
}

func parseTargetStrategy(s string) (TargetStrategy, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return TargetAuto, nil
	case "directory":
		return TargetDirectory, nil
	case "sequential":
		return TargetSequential, nil
	default:
		return 0, fmt.Errorf("%w: target strategy %q", ErrInvalidArgument, s)
	}
}
