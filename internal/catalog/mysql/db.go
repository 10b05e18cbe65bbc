package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
)

type DBConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	ConnectionLimit int
	ConnectTimeout  time.Duration
}

// DSN renders cfg for the MySQL driver. Multi-statement execution stays
// disabled so a single call can never run more than one statement.
func (cfg DBConfig) DSN() string {
	dsn := gomysql.NewConfig()
	dsn.User = cfg.User
	dsn.Passwd = cfg.Password
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dsn.DBName = cfg.Database
	dsn.MultiStatements = false
	dsn.Timeout = cfg.ConnectTimeout
	return dsn.FormatDSN()
}

func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("database host is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("database name is required")
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql db: %w", err)
	}

	if cfg.ConnectionLimit > 0 {
		db.SetMaxOpenConns(cfg.ConnectionLimit)
		db.SetMaxIdleConns(cfg.ConnectionLimit)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql db: %w", err)
	}

	return db, nil
}
