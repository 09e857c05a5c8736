package commands

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/teranos/globalcalls/am"
	"github.com/teranos/globalcalls/db"
	"github.com/teranos/globalcalls/errors"
	"github.com/teranos/globalcalls/logger"
)

// LoadConfig reads the file given by --config, or the am.toml cascade, and
// validates it
func LoadConfig(cmd *cobra.Command) (*am.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *am.Config
		err error
	)
	if path != "" {
		cfg, err = am.LoadFromFile(path)
	} else {
		cfg, err = am.Load()
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// openDatabase opens the configured database and applies pending migrations
func openDatabase(cfg *am.Config) (*sql.DB, error) {
	driver := cfg.GetDatabaseDriver()
	conn, err := db.OpenWithMigrations(driver, cfg.GetDataSource(), logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", driver)
	}
	return conn, nil
}
