package mysql

import (
	"database/sql"
	"net"

	"github.com/chanyoung/copymachine/pkg/util/config"
	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

var generateSQLBase = []string{
	`
	CREATE TABLE IF NOT EXISTS cm_job (
		cmj_run_id VARCHAR(36) NOT NULL,
		cmj_type VARCHAR(32) NOT NULL,
		cmj_faults TEXT NOT NULL,
		cmj_pool_version BIGINT UNSIGNED NOT NULL,
		cmj_node VARCHAR(255) NOT NULL,
		cmj_state INT NOT NULL,
		cmj_error TEXT,
		cmj_scheduled_at DATETIME(6) NOT NULL,
		cmj_finished_at DATETIME(6),
		PRIMARY KEY (cmj_run_id),
		INDEX (cmj_type, cmj_scheduled_at)
	)
	`,
}

// open opens the database of the config.
func open(cfg *config.MySQL) (*sql.DB, error) {
	dsn := mysql.Config{
		User:                 cfg.User,
		Passwd:               cfg.Password,
		Net:                  "tcp",
		Addr:                 net.JoinHostPort(cfg.Host, cfg.Port),
		DBName:               cfg.Database,
		ParseTime:            true,
		AllowNativePasswords: true,
	}

	db, err := sql.Open("mysql", dsn.FormatDSN())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open mysql")
	}
	return db, nil
}

// initTables generates the base tables.
func initTables(db *sql.DB) error {
	for _, q := range generateSQLBase {
		if _, err := db.Exec(q); err != nil {
			return classify(err, "failed to generate base tables")
		}
	}
	return nil
}

// classify adds the mysql error number to the error.
func classify(err error, msg string) error {
	if mysqlError, ok := err.(*mysql.MySQLError); ok {
		return errors.Wrapf(err, "%s: mysql error %d", msg, mysqlError.Number)
	}
	return errors.Wrap(err, msg)
}
