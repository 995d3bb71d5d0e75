// Package config holds the engine-wide configuration record described in
// spec.md §6. All options are runtime-tunable except PageSize, which is
// fixed at Open time.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// IsolationLevel mirrors the four transaction isolation levels.
type IsolationLevel uint8

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
	Serializable
)

func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "READ UNCOMMITTED"
	case ReadCommitted:
		return "READ COMMITTED"
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "UNKNOWN"
	}
}

// Config is the single configuration record validated once at Load/Validate
// time (§9 design note: "duck-typed configuration ... replaced by one
// configuration record").
type Config struct {
	// Page size is initialization-time only; everything else is
	// runtime-tunable per spec.md §6.
	PageSize uint32

	BufferPoolPages      uint32
	BufferPoolYoungRatio float64

	DefaultIsolationLevel IsolationLevel
	LockWaitTimeoutMS     int64 // 0 = unbounded
	DeadlockCheckInterval time.Duration

	CheckpointInterval      time.Duration
	CheckpointMaxDirtyPages uint32

	WALSegmentSizeBytes int64
	WALBufferBytes      int
	WALSyncAfterWrite   bool

	FKCascadeDepthLimit int

	SlowQueryThreshold time.Duration

	DataDir string
}

// Default returns the engine's baseline configuration.
func Default(dataDir string) Config {
	return Config{
		PageSize:                16 * 1024,
		BufferPoolPages:         8192,
		BufferPoolYoungRatio:    5.0 / 8.0,
		DefaultIsolationLevel:   RepeatableRead,
		LockWaitTimeoutMS:       50_000,
		DeadlockCheckInterval:   time.Second,
		CheckpointInterval:      60 * time.Second,
		CheckpointMaxDirtyPages: 4096,
		WALSegmentSizeBytes:     64 * 1024 * 1024,
		WALBufferBytes:          1 << 20,
		WALSyncAfterWrite:       true,
		FKCascadeDepthLimit:     15,
		SlowQueryThreshold:      time.Second,
		DataDir:                 dataDir,
	}
}

// Validate checks the record once, at load time, not on every read.
func (c Config) Validate() error {
	if c.PageSize != 4*1024 && c.PageSize != 16*1024 {
		return errors.Errorf("page size must be 4KiB or 16KiB, got %d", c.PageSize)
	}
	if c.BufferPoolPages == 0 {
		return errors.New("buffer_pool_pages must be > 0")
	}
	if c.BufferPoolYoungRatio <= 0 || c.BufferPoolYoungRatio >= 1 {
		return errors.Errorf("buffer_pool_young_ratio must be in (0,1), got %f", c.BufferPoolYoungRatio)
	}
	if c.WALSegmentSizeBytes <= 0 {
		return errors.New("wal_segment_size_bytes must be > 0")
	}
	if c.FKCascadeDepthLimit <= 0 {
		return errors.New("fk_cascade_depth_limit must be > 0")
	}
	if c.DataDir == "" {
		return errors.New("data_dir must be set")
	}
	return nil
}

// tomlConfig is the on-disk shape, kept separate from Config so the wire
// record (milliseconds, plain ints) can be converted once at load time.
type tomlConfig struct {
	PageSize                uint32  `toml:"page_size"`
	BufferPoolPages         uint32  `toml:"buffer_pool_pages"`
	BufferPoolYoungRatio    float64 `toml:"buffer_pool_young_ratio"`
	DefaultIsolationLevel   string  `toml:"default_isolation_level"`
	LockWaitTimeoutMS       int64   `toml:"lock_wait_timeout_ms"`
	DeadlockCheckIntervalMS int64   `toml:"deadlock_check_interval_ms"`
	CheckpointIntervalS     int64   `toml:"checkpoint_interval_s"`
	CheckpointMaxDirtyPages uint32  `toml:"checkpoint_max_dirty_pages"`
	WALSegmentSizeBytes     int64   `toml:"wal_segment_size_bytes"`
	WALBufferBytes          int     `toml:"wal_buffer_bytes"`
	WALSyncAfterWrite       bool    `toml:"wal_sync_after_write"`
	FKCascadeDepthLimit     int     `toml:"fk_cascade_depth_limit"`
	SlowQueryThresholdMS    int64   `toml:"slow_query_threshold_ms"`
	DataDir                 string  `toml:"data_dir"`
}

// LoadFile parses a TOML configuration file into Config, starting from
// Default(dataDir) for any field the file omits. Configuration-file loading
// itself belongs to the SQL/server layer per spec.md §1; this is the engine
// side record that layer populates.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config file %s", path)
	}

	var raw tomlConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, errors.Wrapf(err, "parsing config file %s", path)
	}

	cfg := Default(raw.DataDir)
	if raw.PageSize != 0 {
		cfg.PageSize = raw.PageSize
	}
	if raw.BufferPoolPages != 0 {
		cfg.BufferPoolPages = raw.BufferPoolPages
	}
	if raw.BufferPoolYoungRatio != 0 {
		cfg.BufferPoolYoungRatio = raw.BufferPoolYoungRatio
	}
	if raw.DefaultIsolationLevel != "" {
		level, err := parseIsolation(raw.DefaultIsolationLevel)
		if err != nil {
			return Config{}, err
		}
		cfg.DefaultIsolationLevel = level
	}
	if raw.LockWaitTimeoutMS != 0 {
		cfg.LockWaitTimeoutMS = raw.LockWaitTimeoutMS
	}
	if raw.DeadlockCheckIntervalMS != 0 {
		cfg.DeadlockCheckInterval = time.Duration(raw.DeadlockCheckIntervalMS) * time.Millisecond
	}
	if raw.CheckpointIntervalS != 0 {
		cfg.CheckpointInterval = time.Duration(raw.CheckpointIntervalS) * time.Second
	}
	if raw.CheckpointMaxDirtyPages != 0 {
		cfg.CheckpointMaxDirtyPages = raw.CheckpointMaxDirtyPages
	}
	if raw.WALSegmentSizeBytes != 0 {
		cfg.WALSegmentSizeBytes = raw.WALSegmentSizeBytes
	}
	if raw.WALBufferBytes != 0 {
		cfg.WALBufferBytes = raw.WALBufferBytes
	}
	// a bool's zero value is a legitimate setting, so presence decides
	if tree, err := toml.LoadBytes(data); err == nil && tree.Has("wal_sync_after_write") {
		cfg.WALSyncAfterWrite = raw.WALSyncAfterWrite
	}
	if raw.FKCascadeDepthLimit != 0 {
		cfg.FKCascadeDepthLimit = raw.FKCascadeDepthLimit
	}
	if raw.SlowQueryThresholdMS != 0 {
		cfg.SlowQueryThreshold = time.Duration(raw.SlowQueryThresholdMS) * time.Millisecond
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseIsolation(s string) (IsolationLevel, error) {
	switch s {
	case "READ UNCOMMITTED", "read-uncommitted":
		return ReadUncommitted, nil
	case "READ COMMITTED", "read-committed":
		return ReadCommitted, nil
	case "REPEATABLE READ", "repeatable-read":
		return RepeatableRead, nil
	case "SERIALIZABLE", "serializable":
		return Serializable, nil
	default:
		return 0, fmt.Errorf("unknown isolation level %q", s)
	}
}
