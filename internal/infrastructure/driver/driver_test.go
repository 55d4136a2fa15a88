package driver

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryAdapters(t *testing.T) {
	query := `SELECT points
		FROM lesson_progress
		WHERE user_id = $1 AND current_lesson_id = $2 FOR UPDATE`

	assert.Equal(t,
		"SELECT points FROM lesson_progress WHERE user_id = ? AND current_lesson_id = ? FOR UPDATE",
		mysqlAdapter(query))
	assert.Equal(t,
		"SELECT points FROM lesson_progress WHERE user_id = ?1 AND current_lesson_id = ?2",
		sqliteAdapter(query))
	assert.Equal(t,
		"SELECT points FROM lesson_progress WHERE user_id = $1 AND current_lesson_id = $2 FOR UPDATE",
		pgsqlAdapter(query))
}

func TestPGTxOptionAdapter(t *testing.T) {
	assert.Equal(t, pgx.TxOptions{}, pgTxOptionAdapter(nil))
	assert.Equal(t,
		pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite, DeferrableMode: pgx.NotDeferrable},
		pgTxOptionAdapter(&TxOptions{Isolation: sql.LevelSerializable, AccessMode: AccessReadWrite, DeferrableMode: NotDeferrable}))
	assert.Equal(t,
		pgx.TxOptions{AccessMode: pgx.ReadOnly, DeferrableMode: pgx.Deferrable},
		pgTxOptionAdapter(&TxOptions{AccessMode: AccessReadOnly, DeferrableMode: Deferrable}))
}

func TestPostgreSQLConn_Unreachable(t *testing.T) {
	conn, err := NewPostgreSQLConn("postgres://roundy@127.0.0.1:1/roundy?connect_timeout=1", &DBConfig{MaxConn: 1})
	if err != nil {
		// the pool dialed eagerly
		return
	}
	defer conn.Close(context.Background())
	assert.Error(t, conn.Ping())
}

func TestGetDBConnection_UnsupportedDriver(t *testing.T) {
	_, err := GetDBConnection(&DBConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestGetDSN(t *testing.T) {
	assert.Equal(t, "roundy:secret@tcp(127.0.0.1:3306)/lessons?parseTime=true", getDSN(&DBConfig{
		User: "roundy", Password: "secret", Protocol: "tcp", Host: "127.0.0.1", Port: 3306,
		Schema: "lessons", Query: "parseTime=true",
	}))
	assert.Equal(t, "roundy:secret@db:5432/lessons", getDSN(&DBConfig{
		User: "roundy", Password: "secret", Host: "db", Port: 5432, Schema: "lessons",
	}))
}

func TestMigrate_SQLite(t *testing.T) {
	ctx := context.Background()
	conn, err := GetDBConnection(&DBConfig{Driver: "sqlite3", Schema: ":memory:"})
	require.NoError(t, err)
	defer conn.Close(ctx)

	require.NoError(t, Migrate(ctx, conn))
	require.NoError(t, Migrate(ctx, conn), "migrations must be idempotent")

	_, err = conn.ExecContext(ctx, `INSERT INTO lesson_unlock (user_id, lesson_id) VALUES ($1, $2)`, "u1", 1)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `INSERT INTO lesson_unlock (user_id, lesson_id) VALUES ($1, $2)`, "u1", 1)
	assert.True(t, IsUniqueViolation(err), "got %v", err)
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))

	rows, err := conn.QueryContext(ctx, `SELECT lesson_id FROM lesson_unlock WHERE user_id = $1 FOR UPDATE`, "u1")
	require.NoError(t, err)
	var ids []int
	for rows.Next() {
		var id int
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Close())
	assert.Equal(t, []int{1}, ids)
}

func TestSQLWrapper_Transaction(t *testing.T) {
	ctx := context.Background()
	conn, err := NewSQLiteConn(":memory:")
	require.NoError(t, err)
	defer conn.Close(ctx)
	require.NoError(t, Migrate(ctx, conn))

	tx, err := conn.BeginTx(ctx, &TxOptions{AccessMode: AccessReadWrite})
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, `INSERT INTO lesson_progress (user_id, current_lesson_id, points) VALUES ($1, $2, $3)`, "u1", 1, 0)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	tx, err = conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, `INSERT INTO lesson_progress (user_id, current_lesson_id, points) VALUES ($1, $2, $3)`, "u2", 1, 0)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	rows, err := conn.QueryContext(ctx, `SELECT user_id FROM lesson_progress`)
	require.NoError(t, err)
	var users []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		users = append(users, id)
	}
	require.NoError(t, rows.Close())
	assert.Equal(t, []string{"u2"}, users)
}

func TestMemoryKV_Expiration(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	now := time.Unix(1700000000, 0)
	kv.now = func() time.Time { return now }

	require.NoError(t, kv.SetEX(ctx, "token", "1", time.Minute))
	require.NoError(t, kv.SetEX(ctx, "forever", "2", 0))

	ok, err := kv.Exists(ctx, "token")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	ok, _ = kv.Exists(ctx, "token")
	assert.False(t, ok)
	v, ok, err := kv.Get(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	_, ok, _ = kv.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestMemoryKV_Update(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, kv.Update(ctx, "counter", func(current string, exists bool) (string, error) {
				return current + "x", nil
			}))
		}()
	}
	wg.Wait()
	v, _, _ := kv.Get(ctx, "counter")
	assert.Len(t, v, 50)

	require.NoError(t, kv.Update(ctx, "counter", func(string, bool) (string, error) {
		return "", ErrSkipUpdate
	}))
	v, _, _ = kv.Get(ctx, "counter")
	assert.Len(t, v, 50)

	boom := errors.New("boom")
	assert.ErrorIs(t, kv.Update(ctx, "counter", func(string, bool) (string, error) {
		return "", boom
	}), boom)
}
