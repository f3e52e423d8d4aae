package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	"github.com/raidmeter/encounters/pkg/log"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNoResult is returned on successful queries which return no rows.
	ErrNoResult = errors.New("no results found")
	// ErrDuplicate is returned when a duplicate row result is attempted to be inserted.
	ErrDuplicate = errors.New("entity already exists")
	// ErrConstraint is returned when a foreign key or check constraint rejects a write.
	ErrConstraint = errors.New("constraint violation")
	// ErrStoreUnavailable is returned when the store cannot be opened, created or migrated.
	ErrStoreUnavailable = errors.New("encounter store unavailable")

	ErrCreateQuery = errors.New("failed to generate query")
	ErrBusy        = errors.New("database is busy")
)

// DefaultFileName is the store file created inside the configured directory.
const DefaultFileName = "encounters.db"

// Executor is the common subset of *sql.DB, *sql.Conn and *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Database is the common database interface. Methods accepting a *sql.Tx run against the pool when
// it is nil. Errors returned from the Query/Exec helpers are not wrapped, callers should pass them
// through DBErr.
type Database interface {
	Connect(ctx context.Context) error
	Close() error
	Path() string
	Builder() sq.StatementBuilderType
	QueryBuilder(ctx context.Context, tx *sql.Tx, builder sq.SelectBuilder) (*sql.Rows, error)
	QueryRowBuilder(ctx context.Context, tx *sql.Tx, builder sq.SelectBuilder) (*sql.Row, error)
	Exec(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error)
	ExecInsertBuilder(ctx context.Context, tx *sql.Tx, builder sq.InsertBuilder) error
	ExecInsertBuilderWithReturnValue(ctx context.Context, tx *sql.Tx, builder sq.InsertBuilder, outID any) error
	ExecUpdateBuilder(ctx context.Context, tx *sql.Tx, builder sq.UpdateBuilder) (int64, error)
	ExecDeleteBuilder(ctx context.Context, tx *sql.Tx, builder sq.DeleteBuilder) (int64, error)
	GetCount(ctx context.Context, tx *sql.Tx, builder sq.SelectBuilder) (int64, error)
	WrapTx(ctx context.Context, fn func(*sql.Tx) error) error
	Migrate(ctx context.Context) ([]string, error)
	Vacuum(ctx context.Context) error
	SizeOnDisk(ctx context.Context) (int64, error)
}

type sqliteStore struct {
	conn *sql.DB
	// Use ? for sqlite based queries.
	sb          sq.StatementBuilderType
	path        string
	busyTimeout int
	autoMigrate bool
	migrated    bool
	logQueries  bool
}

type Opts struct {
	// Dir is the directory holding the store file, it is created when missing.
	Dir string
	// File defaults to DefaultFileName.
	File string
	// BusyTimeout is the lock wait in milliseconds.
	BusyTimeout int
	AutoMigrate bool
	LogQueries  bool
}

func New(opts Opts) Database {
	if opts.File == "" {
		opts.File = DefaultFileName
	}

	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5000
	}

	return &sqliteStore{
		sb:          sq.StatementBuilder.PlaceholderFormat(sq.Question),
		path:        filepath.Join(opts.Dir, opts.File),
		busyTimeout: opts.BusyTimeout,
		autoMigrate: opts.AutoMigrate,
		logQueries:  opts.LogQueries,
	}
}

func (db *sqliteStore) dsn() string {
	return fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		db.path, db.busyTimeout)
}

// Connect opens the store file, creating it when missing, and brings the schema up to date
// when auto migration is enabled. Every failure is reported as ErrStoreUnavailable.
func (db *sqliteStore) Connect(ctx context.Context) error {
	if errDir := os.MkdirAll(filepath.Dir(db.path), 0o755); errDir != nil {
		return errors.Join(errDir, ErrStoreUnavailable)
	}

	conn, errOpen := sql.Open("sqlite", db.dsn())
	if errOpen != nil {
		return errors.Join(errOpen, ErrStoreUnavailable)
	}

	if errPing := conn.PingContext(ctx); errPing != nil {
		_ = conn.Close()

		return errors.Join(errPing, ErrStoreUnavailable)
	}

	db.conn = conn

	if db.autoMigrate && !db.migrated {
		if _, errMigrate := db.Migrate(ctx); errMigrate != nil {
			return errMigrate
		}
	}

	return nil
}

// Close will close the underlying database connection if it exists.
func (db *sqliteStore) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}

	return nil
}

func (db *sqliteStore) Path() string {
	return db.path
}

func (db *sqliteStore) Builder() sq.StatementBuilderType {
	return db.sb
}

func (db *sqliteStore) executor(tx *sql.Tx) Executor { //nolint:ireturn
	if tx != nil {
		return tx
	}

	return db.conn
}

func (db *sqliteStore) trace(query string, args []any) {
	if db.logQueries {
		slog.Info("Executing command", slog.String("sql", query), slog.Any("args", args))
	}
}

func (db *sqliteStore) QueryBuilder(ctx context.Context, tx *sql.Tx, builder sq.SelectBuilder) (*sql.Rows, error) {
	query, args, errQuery := builder.ToSql()
	if errQuery != nil {
		return nil, errors.Join(errQuery, ErrCreateQuery)
	}

	db.trace(query, args)

	return db.executor(tx).QueryContext(ctx, query, args...) //nolint:wrapcheck
}

func (db *sqliteStore) QueryRowBuilder(ctx context.Context, tx *sql.Tx, builder sq.SelectBuilder) (*sql.Row, error) {
	query, args, errQuery := builder.ToSql()
	if errQuery != nil {
		return nil, errors.Join(errQuery, ErrCreateQuery)
	}

	db.trace(query, args)

	return db.executor(tx).QueryRowContext(ctx, query, args...), nil
}

func (db *sqliteStore) Exec(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	db.trace(query, args)

	result, errExec := db.executor(tx).ExecContext(ctx, query, args...)
	if errExec != nil {
		return 0, errExec //nolint:wrapcheck
	}

	affected, errAffected := result.RowsAffected()
	if errAffected != nil {
		return 0, nil //nolint:nilerr
	}

	return affected, nil
}

func (db *sqliteStore) ExecInsertBuilder(ctx context.Context, tx *sql.Tx, builder sq.InsertBuilder) error {
	query, args, errQuery := builder.ToSql()
	if errQuery != nil {
		return errors.Join(errQuery, ErrCreateQuery)
	}

	_, err := db.Exec(ctx, tx, query, args...)

	return err
}

func (db *sqliteStore) ExecInsertBuilderWithReturnValue(ctx context.Context, tx *sql.Tx, builder sq.InsertBuilder, outID any) error {
	query, args, errQuery := builder.ToSql()
	if errQuery != nil {
		return errors.Join(errQuery, ErrCreateQuery)
	}

	db.trace(query, args)

	return db.executor(tx).QueryRowContext(ctx, query, args...).Scan(outID) //nolint:wrapcheck
}

func (db *sqliteStore) ExecUpdateBuilder(ctx context.Context, tx *sql.Tx, builder sq.UpdateBuilder) (int64, error) {
	query, args, errQuery := builder.ToSql()
	if errQuery != nil {
		return 0, errors.Join(errQuery, ErrCreateQuery)
	}

	return db.Exec(ctx, tx, query, args...)
}

func (db *sqliteStore) ExecDeleteBuilder(ctx context.Context, tx *sql.Tx, builder sq.DeleteBuilder) (int64, error) {
	query, args, errQuery := builder.ToSql()
	if errQuery != nil {
		return 0, errors.Join(errQuery, ErrCreateQuery)
	}

	return db.Exec(ctx, tx, query, args...)
}

func (db *sqliteStore) GetCount(ctx context.Context, tx *sql.Tx, builder sq.SelectBuilder) (int64, error) {
	countQuery, argsCount, errCountQuery := builder.ToSql()
	if errCountQuery != nil {
		return 0, errors.Join(errCountQuery, ErrCreateQuery)
	}

	db.trace(countQuery, argsCount)

	var count int64
	if errCount := db.executor(tx).
		QueryRowContext(ctx, countQuery, argsCount...).
		Scan(&count); errCount != nil {
		return 0, DBErr(errCount)
	}

	return count, nil
}

// WrapTx runs txFunc inside a transaction on a dedicated connection. Foreign key enforcement is
// switched on for that connection before the transaction starts since the pragma is ignored once
// a transaction is open, which keeps cascading deletes working regardless of how the connection
// was created.
func (db *sqliteStore) WrapTx(ctx context.Context, txFunc func(*sql.Tx) error) error {
	conn, errConn := db.conn.Conn(ctx)
	if errConn != nil {
		return DBErr(errConn)
	}

	defer log.Closer(conn)

	if _, errPragma := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); errPragma != nil {
		return DBErr(errPragma)
	}

	transaction, errTx := conn.BeginTx(ctx, nil)
	if errTx != nil {
		return DBErr(errTx)
	}

	if err := txFunc(transaction); err != nil {
		if errRollback := transaction.Rollback(); errRollback != nil {
			return errors.Join(err, DBErr(errRollback))
		}

		return err
	}

	if err := transaction.Commit(); err != nil {
		return DBErr(err)
	}

	return nil
}

// Vacuum rebuilds the store file, releasing pages freed by deletions.
func (db *sqliteStore) Vacuum(ctx context.Context) error {
	if _, err := db.Exec(ctx, nil, "VACUUM"); err != nil {
		return DBErr(err)
	}

	return nil
}

// SizeOnDisk is the size of the main database file. Pages still held in the write ahead log are
// not included until the next checkpoint.
func (db *sqliteStore) SizeOnDisk(_ context.Context) (int64, error) {
	info, errStat := os.Stat(db.path)
	if errStat != nil {
		return 0, errStat //nolint:wrapcheck
	}

	return info.Size(), nil
}

// DBErr is used to wrap common database errors in our own error types.
func DBErr(rootError error) error {
	if rootError == nil {
		return nil
	}

	if errors.Is(rootError, sql.ErrNoRows) {
		return ErrNoResult
	}

	var sqliteErr *sqlite.Error
	if errors.As(rootError, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return ErrDuplicate
		case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY,
			sqlite3.SQLITE_CONSTRAINT_NOTNULL, sqlite3.SQLITE_CONSTRAINT_CHECK:
			return errors.Join(rootError, ErrConstraint)
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return errors.Join(rootError, ErrBusy)
		default:
			return rootError
		}
	}

	return rootError
}
