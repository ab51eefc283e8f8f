package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/AgusMolinaCode/bitlab/internal/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const sqlitePragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)"

// Open returns the single long-lived handle shared by every repository.
// For sqlite, url is a file path or ":memory:".
func Open(ctx context.Context, driver, url string) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch driver {
	case DriverSQLite:
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		db, err = sql.Open("sqlite", url+sep+sqlitePragmas)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", url, err)
		}
		// one connection avoids SQLITE_BUSY and keeps :memory: databases alive
		db.SetMaxOpenConns(1)
	case DriverPostgres:
		db, err = sql.Open("postgres", url)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	logger.L.Info("database connection established", "driver", driver)
	return db, nil
}
