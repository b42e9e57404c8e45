package repomanager

import (
	"context"
	"database/sql"
	"strings"

	"github.com/atiera/qrlogin/internal/dbx"
	"github.com/atiera/qrlogin/internal/server/migrations"
	"github.com/atiera/qrlogin/internal/server/repositories/auditlog"
	"github.com/atiera/qrlogin/internal/server/repositories/qrcodes"
	"github.com/atiera/qrlogin/internal/server/repositories/users"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// sqlitePragmas are appended to every SQLite DSN that does not set its own.
const sqlitePragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"

// SQLiteRepositoryManager vends SQLite-backed repositories. The handle it
// is built for is limited to a single connection, which serialises writers.
type SQLiteRepositoryManager struct{}

func (m *SQLiteRepositoryManager) QRCodes(db dbx.DBTX) qrcodes.Repository {
	return qrcodes.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) AuditLog(db dbx.DBTX) auditlog.Repository {
	return auditlog.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, migrations.SQLiteDir)
}

// NewSQLiteRepositoryManager limits db to one open connection and returns a
// SQLite-backed RepositoryManager.
func NewSQLiteRepositoryManager(db *sql.DB) (RepositoryManager, error) {
	db.SetMaxOpenConns(1)
	return &SQLiteRepositoryManager{}, nil
}

// sqliteDSN turns "sqlite:<path>" into a file URI and adds the default
// pragmas unless the DSN already carries some.
func sqliteDSN(dsn string) string {
	if rest, ok := strings.CutPrefix(dsn, "sqlite:"); ok {
		dsn = "file:" + strings.TrimPrefix(rest, "//")
	}
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqlitePragmas
	}
	return dsn + "?" + sqlitePragmas
}
