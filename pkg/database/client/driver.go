package client

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	DialectMySQL  = "mysql"
	DialectSQLite = "sqlite"
)

// Database describes one SQL store
type Database struct {
	Dialect  string
	Username string
	Password string
	Host     string
	Port     uint32
	Name     string
	// Path is the SQLite file when Dialect is sqlite
	Path string

	TracingEnabled  bool
	MaxOpenConns    uint32
	MaxIdleConns    uint32
	ConnMaxIdleTime time.Duration
	ConnMaxLifeTime time.Duration
}

// NewDriver creates a MySQL driver that builds its DSN from config on every dial
func NewDriver(config *Database) driver.Driver {
	return &Driver{config: config}
}

type Driver struct {
	drv    mysql.MySQLDriver
	config *Database
}

func (d *Driver) Open(_ string) (driver.Conn, error) {
	return d.drv.Open(formatDSN(d.config))
}

func formatDSN(config *Database) string {
	mysqlConfig := mysql.NewConfig()
	mysqlConfig.Net = "tcp"
	mysqlConfig.Addr = fmt.Sprintf("%s:%d", config.Host, config.Port)
	mysqlConfig.DBName = config.Name
	mysqlConfig.User = config.Username
	mysqlConfig.Passwd = config.Password
	mysqlConfig.AllowNativePasswords = true
	mysqlConfig.ParseTime = true
	return mysqlConfig.FormatDSN()
}
