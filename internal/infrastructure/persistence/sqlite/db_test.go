package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "tx.db")+"?_txlock=immediate")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	_, err = sqlDB.Exec("CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)")
	require.NoError(t, err)
	return NewDB(sqlDB, zap.NewNop())
}

func count(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM kv").Scan(&n))
	return n
}

func TestWithTransaction_Commits(t *testing.T) {
	db := newTestDB(t)

	err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
		_, err := ExecutorFor(ctx, db.DB).ExecContext(ctx, "INSERT INTO kv VALUES ('a', '1')")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count(t, db))
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	boom := errors.New("boom")

	err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
		if _, err := ExecutorFor(ctx, db.DB).ExecContext(ctx, "INSERT INTO kv VALUES ('a', '1')"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, count(t, db))
}

func TestWithTransaction_NestedJoinsOuter(t *testing.T) {
	db := newTestDB(t)
	boom := errors.New("outer failure")

	err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
		inner := db.WithTransaction(ctx, func(ctx context.Context) error {
			_, err := ExecutorFor(ctx, db.DB).ExecContext(ctx, "INSERT INTO kv VALUES ('a', '1')")
			return err
		})
		require.NoError(t, inner)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, count(t, db), "inner work must roll back with the outer transaction")
}

func TestWithTransaction_RollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)

	assert.Panics(t, func() {
		_ = db.WithTransaction(context.Background(), func(ctx context.Context) error {
			_, _ = ExecutorFor(ctx, db.DB).ExecContext(ctx, "INSERT INTO kv VALUES ('a', '1')")
			panic("boom")
		})
	})
	assert.Equal(t, 0, count(t, db))
}

func TestExecutorFor_WithoutTransaction(t *testing.T) {
	db := newTestDB(t)
	_, ok := ExecutorFor(context.Background(), db.DB).(*sql.DB)
	assert.True(t, ok)
}
