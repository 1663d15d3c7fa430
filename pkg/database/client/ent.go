package client

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"sync"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	sqltrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/database/sql"
	"modernc.org/sqlite"
)

var (
	registerMu sync.Mutex
	registered = map[string]bool{}
)

// Open initializes a new Ent SQL driver from config.
func Open(name string, cfg *Database) (*entsql.Driver, error) {
	var (
		db      *sql.DB
		err     error
		entName string
	)

	switch cfg.Dialect {
	case DialectSQLite:
		entName = dialect.SQLite
		db, err = open(name, &sqlite.Driver{}, sqliteDSN(cfg.Path), cfg.TracingEnabled)
	case DialectMySQL, "":
		entName = dialect.MySQL
		db, err = open(name, NewDriver(cfg), "", cfg.TracingEnabled)
	default:
		return nil, fmt.Errorf("unsupported database dialect %q", cfg.Dialect)
	}
	if err != nil {
		return nil, err
	}

	drv := entsql.OpenDB(entName, db)
	if entName == dialect.SQLite {
		// one writer; also keeps :memory: databases on a single connection
		drv.DB().SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		drv.DB().SetMaxOpenConns(int(cfg.MaxOpenConns))
	}
	if cfg.MaxIdleConns > 0 {
		drv.DB().SetMaxIdleConns(int(cfg.MaxIdleConns))
	}
	if cfg.ConnMaxIdleTime > 0 {
		drv.DB().SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifeTime > 0 {
		drv.DB().SetConnMaxLifetime(cfg.ConnMaxLifeTime)
	}
	return drv, nil
}

// open registers d under name once and opens it, through the tracer when enabled
func open(name string, d driver.Driver, dsn string, tracing bool) (*sql.DB, error) {
	registerMu.Lock()
	if !registered[name] {
		sql.Register(name, d)
		if tracing {
			sqltrace.Register(name, d, sqltrace.WithServiceName(os.Getenv("DD_SERVICE")))
		}
		registered[name] = true
	}
	registerMu.Unlock()

	if tracing {
		return sqltrace.Open(name, dsn, sqltrace.WithServiceName(os.Getenv("DD_SERVICE")))
	}
	return sql.Open(name, dsn)
}

func sqliteDSN(path string) string {
	if path == "" {
		path = ":memory:"
	}
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}
