package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalogmysql "github.com/tabletalk/tabletalk/internal/catalog/mysql"
	"github.com/tabletalk/tabletalk/internal/errs"
)

func TestPoolOpenerClosesPoolWithSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	var gotCfg catalogmysql.DBConfig
	opener := NewPoolOpener(catalogmysql.DBConfig{Host: "db", Database: "school", ConnectionLimit: 3})
	opener.open = func(_ context.Context, cfg catalogmysql.DBConfig) (*sql.DB, error) {
		gotCfg = cfg
		return db, nil
	}

	sess, err := opener.Open(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, sess.Catalog())
	assert.NotNil(t, sess.Query())
	require.NoError(t, sess.Close())

	assert.Equal(t, 3, gotCfg.ConnectionLimit)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolOpenerWrapsOpenFailure(t *testing.T) {
	opener := NewPoolOpener(catalogmysql.DBConfig{})
	opener.open = func(context.Context, catalogmysql.DBConfig) (*sql.DB, error) {
		return nil, errors.New("ping mysql db: connection refused")
	}

	_, err := opener.Open(context.Background())
	assert.True(t, errs.KindIs(errs.Internal, err))
}

func TestSharedOpenerLeavesPoolOpen(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mock.ExpectPing()

	sess, err := NewSharedOpener(db).Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, sess.Close())

	require.NoError(t, db.PingContext(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
