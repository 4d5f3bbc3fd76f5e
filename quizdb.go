package paidquiz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// PgErrUniqueViolation is the Postgres unique_violation code
	PgErrUniqueViolation = "23505"

	sqliteBusyTimeoutMillis = 5000
)

// Store is the durable record of question sets, sessions, balances and the
// ledger. Operations on a Store handed to RunInTransaction's callback run
// inside that transaction.
type Store interface {
	QuestionStore

	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	LockUser(ctx context.Context, id string) (*User, error)
	SetBalance(ctx context.Context, id string, balance decimal.Decimal) error

	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	LockSession(ctx context.Context, id string) (*Session, error)
	FindSessionByPaymentReference(ctx context.Context, reference string) (*Session, error)
	SaveSession(ctx context.Context, session *Session) error
	RecentSessionResults(ctx context.Context, userID string, since, until time.Time, excludeID string) ([]SessionResult, error)
	AbandonSessionsStartedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	CreateTransaction(ctx context.Context, txn *Transaction) error
	FindTransaction(ctx context.Context, reference string) (*Transaction, error)
	LockTransaction(ctx context.Context, reference string) (*Transaction, error)
	SaveTransaction(ctx context.Context, txn *Transaction) error
}

// DB is the gorm-backed Store
type DB struct {
	db *gorm.DB
}

// OpenDB opens a new database connection for driver ("sqlite" or
// "postgres"). Postgres connections are retried up to attempts times.
func OpenDB(driver, dsn string, attempts int, logger log.Logger) (*DB, error) {
	logger = orNop(logger)
	cfg := &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	switch driver {
	case DriverSQLite, "":
		gdb, err := gorm.Open(sqlite.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database handle: %w", err)
		}
		// SQLite allows one writer; a single connection keeps transactions
		// from tripping over each other
		sqlDB.SetMaxOpenConns(1)
		if err := gdb.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", sqliteBusyTimeoutMillis)).Error; err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
		return &DB{db: gdb}, nil

	case DriverPostgres:
		if attempts < 1 {
			attempts = 1
		}
		var lastErr error
		for i := range attempts {
			level.Info(logger).Log("msg", "connecting to postgres", "attempt", i+1)
			gdb, err := gorm.Open(postgres.Open(dsn), cfg)
			if err == nil {
				return &DB{db: gdb}, nil
			}
			lastErr = err
			level.Warn(logger).Log("msg", "postgres connection failed", "attempt", i+1, "err", err)
			if i < attempts-1 {
				time.Sleep(2 * time.Second)
			}
		}
		return nil, fmt.Errorf("failed to connect to postgres after %d attempts: %w", attempts, lastErr)
	}

	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

// Migrate creates or updates the tables
func (db *DB) Migrate() error {
	if err := db.db.AutoMigrate(&User{}, &QuestionSet{}, &Session{}, &Transaction{}); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RunInTransaction runs fn in one database transaction. Any error returned
// by fn rolls everything back.
func (db *DB) RunInTransaction(ctx context.Context, fn func(tx Store) error) error {
	return db.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&DB{db: tx})
	})
}

func (db *DB) conn(ctx context.Context) *gorm.DB {
	return db.db.WithContext(ctx)
}

// forUpdate locks the selected rows until the transaction ends. The SQLite
// dialect drops the clause; its single writer serialises instead.
func (db *DB) forUpdate(ctx context.Context) *gorm.DB {
	return db.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == PgErrUniqueViolation
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
