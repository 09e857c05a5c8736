package am

import "github.com/teranos/globalcalls/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.GetDatabaseDriver() {
	case DriverSQLite:
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("database.dsn cannot be empty when database.driver is pgx")
		}
	default:
		return errors.Newf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}

	// Pipeline sizes: zero means "use default" through GetPipelineConfig, negative is invalid
	if c.Pipeline.Workers < 0 {
		return errors.Newf("pipeline.workers must be >= 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.BatchSize < 0 {
		return errors.Newf("pipeline.batch_size must be >= 1, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.QueueCapacity < 0 {
		return errors.Newf("pipeline.queue_capacity must be >= 1, got %d", c.Pipeline.QueueCapacity)
	}
	if c.Pipeline.InsertChunkRows < 0 {
		return errors.Newf("pipeline.insert_chunk_rows must be >= 1, got %d", c.Pipeline.InsertChunkRows)
	}

	// Descendant depth: 0 = no downward propagation, negative = invalid
	if c.Pipeline.DescendantDepth < 0 {
		return errors.Newf("pipeline.descendant_depth must be >= 0, got %d", c.Pipeline.DescendantDepth)
	}

	return nil
}
