package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// Default values, shared by SetDefaults and the zero-value fallbacks below
const (
	DefaultDatabasePath    = "globalcalls.db"
	DefaultWorkers         = 4
	DefaultBatchSize       = 1000
	DefaultQueueCapacity   = 5
	DefaultDescendantDepth = 1
	DefaultInsertChunkRows = 200
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", DefaultDatabasePath)

	// Pipeline defaults
	v.SetDefault("pipeline.workers", DefaultWorkers)
	v.SetDefault("pipeline.batch_size", DefaultBatchSize)
	v.SetDefault("pipeline.queue_capacity", DefaultQueueCapacity)
	v.SetDefault("pipeline.descendant_depth", DefaultDescendantDepth)
	v.SetDefault("pipeline.insert_chunk_rows", DefaultInsertChunkRows)

	// Logging defaults
	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("database.dsn", "GLOBALCALLS_DATABASE_DSN")
	_ = v.BindEnv("database.path", "GLOBALCALLS_DATABASE_PATH")
}

// GetDatabasePath returns the configured sqlite path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return DefaultDatabasePath
	}
	return c.Database.Path
}

// GetDatabaseDriver returns the configured driver name (default: sqlite3)
func (c *Config) GetDatabaseDriver() string {
	if c.Database.Driver == "" {
		return DriverSQLite
	}
	return c.Database.Driver
}

// GetDataSource returns what database/sql needs to open the configured store:
// the DSN for postgres, the file path for sqlite.
func (c *Config) GetDataSource() string {
	if c.GetDatabaseDriver() == DriverPostgres {
		return c.Database.DSN
	}
	return c.GetDatabasePath()
}

// GetPipelineConfig returns the pipeline configuration with defaults applied
func (c *Config) GetPipelineConfig() PipelineConfig {
	cfg := c.Pipeline

	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.InsertChunkRows == 0 {
		cfg.InsertChunkRows = DefaultInsertChunkRows
	}

	return cfg
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: {%s %s}, Pipeline: {Workers: %d, BatchSize: %d, Queue: %d, Depth: %d}}",
		c.GetDatabaseDriver(), c.GetDatabasePath(),
		c.Pipeline.Workers, c.Pipeline.BatchSize, c.Pipeline.QueueCapacity, c.Pipeline.DescendantDepth)
}
