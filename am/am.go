package am

// Config represents the globalcalls configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database" toml:"database" json:"database" yaml:"database"`
	Pipeline PipelineConfig `mapstructure:"pipeline" toml:"pipeline" json:"pipeline" yaml:"pipeline"`
	Log      LogConfig      `mapstructure:"log" toml:"log" json:"log" yaml:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics" toml:"metrics" json:"metrics" yaml:"metrics"`
}

// Supported database drivers
const (
	DriverSQLite   = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPostgres = "pgx"     // github.com/jackc/pgx/v5/stdlib
)

// DatabaseConfig selects the relational store holding raw evidence and receiving global calls
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" toml:"driver" json:"driver" yaml:"driver"` // sqlite3 (default) or pgx
	Path   string `mapstructure:"path" toml:"path" json:"path" yaml:"path"`         // sqlite file path
	DSN    string `mapstructure:"dsn" toml:"dsn" json:"-" yaml:"-"`                 // postgres connection string (never printed)
}

// PipelineConfig sizes the propagation worker pool and the insertion queue.
// Zero sizes fall back to defaults in GetPipelineConfig; a DescendantDepth of 0
// disables propagation of absent evidence to narrower conditions.
type PipelineConfig struct {
	Workers         int `mapstructure:"workers" toml:"workers" json:"workers" yaml:"workers"`                                     // parallel gene-batch workers
	BatchSize       int `mapstructure:"batch_size" toml:"batch_size" json:"batch_size" yaml:"batch_size"`                         // genes per worker batch
	QueueCapacity   int `mapstructure:"queue_capacity" toml:"queue_capacity" json:"queue_capacity" yaml:"queue_capacity"`         // bounded queue between workers and writer
	DescendantDepth int `mapstructure:"descendant_depth" toml:"descendant_depth" json:"descendant_depth" yaml:"descendant_depth"` // max levels below a condition
	InsertChunkRows int `mapstructure:"insert_chunk_rows" toml:"insert_chunk_rows" json:"insert_chunk_rows" yaml:"insert_chunk_rows"`
}

// LogConfig configures the global zap logger
type LogConfig struct {
	JSON  bool   `mapstructure:"json" toml:"json" json:"json" yaml:"json"`
	Level string `mapstructure:"level" toml:"level" json:"level" yaml:"level"`
}

// MetricsConfig configures the Prometheus endpoint served during a run
type MetricsConfig struct {
	Address string `mapstructure:"address" toml:"address" json:"address" yaml:"address"` // empty = not served
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
