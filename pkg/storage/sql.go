package storage

import (
	"context"
	"database/sql"
	"sort"

	// postgres is selected with the "postgres" driver name option
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func init() {
	if err := RegisterStorage(new(SQLDB)); err != nil {
		panic(err)
	}
}

const (
	SQLConnectionString OptionKey = "sql-connection-string-option"
	SQLDriverName       OptionKey = "sql-driver-name-option"
)

const createRecordsTable = `CREATE TABLE IF NOT EXISTS records (
    namespace  text NOT NULL,
    key        text NOT NULL,
    value      bytea NOT NULL,
    updated_at timestamptz NOT NULL DEFAULT now(),
    PRIMARY KEY (namespace, key)
)`

// SQLDB keeps every namespace in one postgres table keyed by (namespace, key).
type SQLDB struct {
	db               *sql.DB
	connectionString string
}

func (s *SQLDB) Init(opts ...Option) error {
	connString, sqlDriverName, err := processSQLOptions(opts...)
	if err != nil {
		return err
	}
	db, err := sql.Open(sqlDriverName, connString)
	if err != nil {
		return errors.Wrap(err, "opening sql db")
	}
	if _, err = db.Exec(createRecordsTable); err != nil {
		_ = db.Close()
		return errors.Wrap(err, "creating records table")
	}
	s.db = db
	s.connectionString = connString
	return nil
}

func processSQLOptions(opts ...Option) (connString string, sqlDriverName string, err error) {
	for _, opt := range opts {
		value, ok := opt.Option.(string)
		switch opt.ID {
		case SQLConnectionString:
			if !ok {
				return "", "", errors.New("sql connection string must be a string")
			}
			connString = value
		case SQLDriverName:
			if !ok {
				return "", "", errors.New("sql driver name must be a string")
			}
			sqlDriverName = value
		}
	}
	if connString == "" || sqlDriverName == "" {
		return "", "", errors.New("sql connection string and driver name must not be empty")
	}
	return connString, sqlDriverName, nil
}

func (s *SQLDB) Type() Type {
	return DatabaseSQL
}

func (s *SQLDB) URI() string {
	return s.connectionString
}

func (s *SQLDB) IsOpen() bool {
	if s.db == nil {
		return false
	}
	if err := s.db.Ping(); err != nil {
		logrus.WithError(err).Error("pinging db")
		return false
	}
	return true
}

func (s *SQLDB) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// querier is what both *sql.DB and *sql.Tx offer.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func upsert(ctx context.Context, q querier, namespace, key string, value []byte) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO records (namespace, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		namespace, key, value)
	return errors.Wrapf(err, "writing %s", Join(namespace, key))
}

func selectValue(ctx context.Context, q querier, query, namespace, key string) ([]byte, error) {
	var value []byte
	if err := q.QueryRowContext(ctx, query, namespace, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading %s", Join(namespace, key))
	}
	return value, nil
}

func deleteRecord(ctx context.Context, q querier, namespace, key string) error {
	_, err := q.ExecContext(ctx, "DELETE FROM records WHERE namespace = $1 AND key = $2", namespace, key)
	return errors.Wrapf(err, "deleting %s", Join(namespace, key))
}

func (s *SQLDB) Write(ctx context.Context, namespace, key string, value []byte) error {
	return upsert(ctx, s.db, namespace, key, value)
}

func (s *SQLDB) WriteMany(ctx context.Context, namespaces, keys []string, values [][]byte) error {
	if len(namespaces) != len(keys) || len(namespaces) != len(values) {
		return errors.New("namespaces, keys, and values, are not of equal length")
	}
	_, err := s.Execute(ctx, func(ctx context.Context, tx Tx) (any, error) {
		for i := range keys {
			if err := tx.Write(ctx, namespaces[i], keys[i], values[i]); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}, nil)
	return err
}

func (s *SQLDB) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	return selectValue(ctx, s.db, "SELECT value FROM records WHERE namespace = $1 AND key = $2", namespace, key)
}

func (s *SQLDB) Exists(ctx context.Context, namespace, key string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM records WHERE namespace = $1 AND key = $2)", namespace, key).Scan(&exists)
	return exists, errors.Wrapf(err, "checking %s", Join(namespace, key))
}

func (s *SQLDB) ReadAll(ctx context.Context, namespace string) (map[string][]byte, error) {
	return s.ReadPrefix(ctx, namespace, "")
}

func (s *SQLDB) ReadPrefix(ctx context.Context, namespace, prefix string) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM records WHERE namespace = $1 AND left(key, length($2)) = $2", namespace, prefix)
	if err != nil {
		return nil, errors.Wrapf(err, "scanning namespace<%s>", namespace)
	}
	defer closeRows(rows)

	values := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err = rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	return values, rows.Err()
}

func (s *SQLDB) ReadAllKeys(ctx context.Context, namespace string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM records WHERE namespace = $1 ORDER BY key", namespace)
	if err != nil {
		return nil, errors.Wrapf(err, "listing keys in namespace<%s>", namespace)
	}
	defer closeRows(rows)

	var keys []string
	for rows.Next() {
		var key string
		if err = rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logrus.WithError(err).Error("closing rows")
	}
}

func (s *SQLDB) Delete(ctx context.Context, namespace, key string) error {
	return deleteRecord(ctx, s.db, namespace, key)
}

func (s *SQLDB) DeleteNamespace(ctx context.Context, namespace string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE namespace = $1", namespace)
	if err != nil {
		return errors.Wrapf(err, "deleting namespace<%s>", namespace)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Errorf("could not delete namespace<%s>, namespace does not exist", namespace)
	}
	return nil
}

type sqlTx struct {
	tx *sql.Tx
}

// Read locks the row until the transaction ends so a concurrent Execute on the same key waits.
func (s *sqlTx) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	return selectValue(ctx, s.tx, "SELECT value FROM records WHERE namespace = $1 AND key = $2 FOR UPDATE", namespace, key)
}

func (s *sqlTx) Write(ctx context.Context, namespace, key string, value []byte) error {
	return upsert(ctx, s.tx, namespace, key, value)
}

func (s *sqlTx) Delete(ctx context.Context, namespace, key string) error {
	return deleteRecord(ctx, s.tx, namespace, key)
}

// lockWatchKeys takes a transaction scoped advisory lock per watched key. Row locks alone cannot serialize two
// transactions that both create the same record. Keys are locked in sorted order so concurrent callers cannot
// deadlock on each other.
func lockWatchKeys(ctx context.Context, tx *sql.Tx, watchKeys []WatchKey) error {
	keys := make([]string, 0, len(watchKeys))
	for _, wk := range watchKeys {
		keys = append(keys, Join(wk.Namespace, wk.Key))
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", k); err != nil {
			return errors.Wrapf(err, "locking %s", k)
		}
	}
	return nil
}

// Execute runs in a read committed transaction holding an advisory lock on every watch key.
func (s *SQLDB) Execute(ctx context.Context, businessLogicFunc BusinessLogicFunc, watchKeys []WatchKey) (any, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "beginning transaction")
	}
	defer func(tx *sql.Tx) {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			logrus.Errorf("problem rolling back %s", err)
		}
	}(tx)

	if err = lockWatchKeys(ctx, tx, watchKeys); err != nil {
		return nil, err
	}

	result, err := businessLogicFunc(ctx, &sqlTx{tx: tx})
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "committing transaction")
	}
	return result, nil
}

var _ Tx = (*sqlTx)(nil)
var _ ServiceStorage = (*SQLDB)(nil)
