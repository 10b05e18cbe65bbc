// Package database hands out per-request sessions. A session bundles the
// catalog repository and query engine over one connection pool and must be
// closed by the caller on every path.
package database

import (
	"context"
	"database/sql"

	"github.com/tabletalk/tabletalk/internal/catalog"
	catalogmysql "github.com/tabletalk/tabletalk/internal/catalog/mysql"
	"github.com/tabletalk/tabletalk/internal/errs"
	"github.com/tabletalk/tabletalk/internal/query"
	querymysql "github.com/tabletalk/tabletalk/internal/query/mysql"
)

type Session interface {
	Catalog() catalog.Repository
	Query() query.Engine
	Close() error
}

type Opener interface {
	Open(ctx context.Context) (Session, error)
}

type session struct {
	db      *sql.DB
	catalog *catalogmysql.Repository
	engine  *querymysql.Engine
	close   func() error
}

func newSession(db *sql.DB, closeFn func() error) *session {
	return &session{
		db:      db,
		catalog: catalogmysql.NewRepository(db),
		engine:  querymysql.NewEngine(db),
		close:   closeFn,
	}
}

func (s *session) Catalog() catalog.Repository { return s.catalog }
func (s *session) Query() query.Engine         { return s.engine }
func (s *session) Close() error                { return s.close() }

// PoolOpener opens a fresh pool for every session and tears it down on
// Close.
type PoolOpener struct {
	cfg  catalogmysql.DBConfig
	open func(context.Context, catalogmysql.DBConfig) (*sql.DB, error)
}

func NewPoolOpener(cfg catalogmysql.DBConfig) *PoolOpener {
	return &PoolOpener{cfg: cfg, open: catalogmysql.Open}
}

func (o *PoolOpener) Open(ctx context.Context) (Session, error) {
	db, err := o.open(ctx, o.cfg)
	if err != nil {
		return nil, errs.E(errs.Internal, errs.Op("database.Open"), err)
	}
	return newSession(db, db.Close), nil
}

// SharedOpener wraps a long-lived pool; closing a session leaves the pool
// open.
type SharedOpener struct {
	db *sql.DB
}

func NewSharedOpener(db *sql.DB) *SharedOpener {
	return &SharedOpener{db: db}
}

func (o *SharedOpener) Open(context.Context) (Session, error) {
	return newSession(o.db, func() error { return nil }), nil
}
