// Package postgres хранит настройки витрины (storefront_preferences) в PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
)

const (
	// ApplicationName видна в pg_stat_activity, если DSN не задаёт своё имя.
	ApplicationName = "storefront-agent"

	preferencesTable = "storefront_preferences"
	opTimeout        = 5 * time.Second
)

var (
	errStoreNotInitialized = errors.New("postgres store is not initialized")
	// ErrSchemaMissing: таблица настроек ещё не создана миграциями.
	ErrSchemaMissing = errors.New("preferences schema is not migrated")
)

// Options задаёт пул соединений. Настройки витрины читаются редко,
// поэтому пул по умолчанию маленький.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultOptions возвращает параметры пула по умолчанию.
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		ConnectTimeout:  5 * time.Second,
	}
}

// Store оборачивает пул соединений database/sql поверх драйвера pgx.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

// Open разбирает DSN, открывает пул и проверяет доступность базы.
func Open(ctx context.Context, dsn string, opts ...func(*Options)) (*Store, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	connConfig, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db := stdlib.OpenDB(*connConfig)
	db.SetMaxOpenConns(o.MaxOpenConns)
	db.SetMaxIdleConns(o.MaxIdleConns)
	db.SetConnMaxLifetime(o.ConnMaxLifetime)

	store := &Store{db: db, timeout: o.ConnectTimeout}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// parseDSN проверяет DSN до открытия пула и проставляет application_name.
func parseDSN(dsn string) (*pgx.ConnConfig, error) {
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if connConfig.RuntimeParams == nil {
		connConfig.RuntimeParams = map[string]string{}
	}
	if connConfig.RuntimeParams["application_name"] == "" {
		connConfig.RuntimeParams["application_name"] = ApplicationName
	}
	return connConfig, nil
}

// DB возвращает пул для репозиториев и мигратора.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет соединение.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Ready проверяет соединение и наличие таблицы настроек. Используется
// health-проверкой: без схемы настройки не читаются, даже если база отвечает.
func (s *Store) Ready(ctx context.Context) error {
	if err := s.Ping(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, preferencesTable).Scan(&exists); err != nil {
		return fmt.Errorf("check preferences schema: %w", err)
	}
	if !exists {
		return ErrSchemaMissing
	}
	return nil
}

// Close закрывает пул.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// isUndefinedTable распознаёт обращение к таблице до применения миграций.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	return false
}
