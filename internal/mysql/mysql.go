package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"
)

type Config struct {
	User     string
	Password string
	Addr     string
	Name     string
	MaxConns int
}

func New(ctx context.Context, cfg Config) (*sql.DB, error) {
	const op = "mysql.New"

	dcfg := driver.NewConfig()
	dcfg.User = cfg.User
	dcfg.Passwd = cfg.Password
	dcfg.Net = "tcp"
	dcfg.Addr = cfg.Addr
	dcfg.DBName = cfg.Name
	dcfg.ParseTime = true
	dcfg.Timeout = 5 * time.Second

	db, err := sql.Open("mysql", dcfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctxPing, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := db.PingContext(ctxPing); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return db, nil
}
