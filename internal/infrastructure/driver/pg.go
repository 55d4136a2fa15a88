package driver

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// pgQuerier is implemented by both *pgxpool.Pool and pgx.Tx
type pgQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// PGWrapper postgres pool implementing ITransactionalDB. Queries are already
// written with $n placeholders, so only whitespace is normalized.
type PGWrapper struct {
	pool *pgxpool.Pool
}

// PGWrapperTx a running postgres transaction
type PGWrapperTx struct {
	tx pgx.Tx
}

type pgExecResult pgconn.CommandTag

type pgRows struct {
	rows pgx.Rows
}

var (
	_ ITransactionalDB = &PGWrapper{}
	_ ITransactionalDB = &PGWrapperTx{}
)

// NewPostgreSQLConn Returns a postgreSQL connection pool
func NewPostgreSQLConn(dsn string, cfg *DBConfig) (ITransactionalDB, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConn > 0 {
		poolConfig.MaxConns = cfg.MaxConn
	}
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.ConnectConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, err
	}
	return &PGWrapper{pool}, nil
}

func (r pgExecResult) LastInsertId() (int64, error) {
	return 0, nil
}

func (r pgExecResult) RowsAffected() (int64, error) {
	return pgconn.CommandTag(r).RowsAffected(), nil
}

func (r *pgRows) Next() bool {
	return r.rows.Next()
}

func (r *pgRows) Scan(dest ...interface{}) error {
	return r.rows.Scan(dest...)
}

func (r *pgRows) Close() error {
	r.rows.Close()
	return r.rows.Err()
}

func pgExec(ctx context.Context, q pgQuerier, query string, args []interface{}) (sql.Result, error) {
	startTime := time.Now()
	query = pgsqlAdapter(query)
	tag, err := q.Exec(ctx, query, args...)
	logStatement(ctx, "Exec", query, startTime, err, args)
	return pgExecResult(tag), err
}

func pgQuery(ctx context.Context, q pgQuerier, query string, args []interface{}) (ISQLRows, error) {
	startTime := time.Now()
	query = pgsqlAdapter(query)
	rows, err := q.Query(ctx, query, args...)
	logStatement(ctx, "Query", query, startTime, err, args)
	if err != nil {
		return nil, err
	}
	return &pgRows{rows}, nil
}

func (pw *PGWrapper) BeginTx(ctx context.Context, opts *TxOptions) (ITransactionalDB, error) {
	startTime := time.Now()
	tx, err := pw.pool.BeginTx(ctx, pgTxOptionAdapter(opts))
	logStatement(ctx, "BeginTx", "", startTime, err, nil)
	if err != nil {
		return nil, err
	}
	return &PGWrapperTx{tx}, nil
}

func (pw *PGWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return pgExec(ctx, pw.pool, query, args)
}

func (pw *PGWrapper) QueryContext(ctx context.Context, query string, args ...interface{}) (ISQLRows, error) {
	return pgQuery(ctx, pw.pool, query, args)
}

func (pw *PGWrapper) Commit(ctx context.Context) error {
	return nil
}

func (pw *PGWrapper) Rollback(ctx context.Context) error {
	return nil
}

// Close close the whole pool
func (pw *PGWrapper) Close(ctx context.Context) error {
	pw.pool.Close()
	return nil
}

func (pw *PGWrapper) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, err := pw.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return conn.Conn().Ping(ctx)
}

func (pwt *PGWrapperTx) BeginTx(ctx context.Context, opts *TxOptions) (ITransactionalDB, error) {
	panic("create transaction inside a transaction")
}

func (pwt *PGWrapperTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return pgExec(ctx, pwt.tx, query, args)
}

func (pwt *PGWrapperTx) QueryContext(ctx context.Context, query string, args ...interface{}) (ISQLRows, error) {
	return pgQuery(ctx, pwt.tx, query, args)
}

func (pwt *PGWrapperTx) Commit(ctx context.Context) error {
	startTime := time.Now()
	err := pwt.tx.Commit(ctx)
	logStatement(ctx, "Commit", "", startTime, err, nil)
	return err
}

// Rollback is a no-op after Commit, so it can always be deferred
func (pwt *PGWrapperTx) Rollback(ctx context.Context) error {
	startTime := time.Now()
	err := pwt.tx.Rollback(ctx)
	if err == pgx.ErrTxClosed {
		return nil
	}
	logStatement(ctx, "Rollback", "", startTime, err, nil)
	return err
}

func (pwt *PGWrapperTx) Close(ctx context.Context) error {
	return nil
}

func (pwt *PGWrapperTx) Ping() error {
	return nil
}

func pgTxOptionAdapter(opts *TxOptions) pgx.TxOptions {
	if opts == nil {
		return pgx.TxOptions{}
	}
	var txOpts pgx.TxOptions
	if opts.Isolation != sql.LevelDefault {
		txOpts.IsoLevel = pgx.TxIsoLevel(strings.ToLower(opts.Isolation.String()))
	}
	if opts.AccessMode == AccessReadOnly {
		txOpts.AccessMode = pgx.ReadOnly
	} else {
		txOpts.AccessMode = pgx.ReadWrite
	}
	if opts.DeferrableMode == Deferrable {
		txOpts.DeferrableMode = pgx.Deferrable
	} else {
		txOpts.DeferrableMode = pgx.NotDeferrable
	}
	return txOpts
}

func pgsqlAdapter(query string) string {
	return SpacePattern.ReplaceAllString(query, " ")
}
