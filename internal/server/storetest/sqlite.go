// Package storetest opens throwaway in-memory SQLite databases with the
// service schema applied, for tests of the repositories and services.
package storetest

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/atiera/qrlogin/internal/server/migrations"
	"github.com/atiera/qrlogin/internal/server/models"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// NewSQLite returns a migrated in-memory database private to the test.
// Like the production SQLite store it is limited to one open connection.
func NewSQLite(t testing.TB) *sql.DB {
	t.Helper()

	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, t.Name())

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sub, err := fs.Sub(migrations.Migrations, migrations.SQLiteDir)
	require.NoError(t, err)

	p, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	require.NoError(t, err)
	_, err = p.Up(context.Background())
	require.NoError(t, err)

	db.SetMaxOpenConns(1)
	return db
}

// SeedUser inserts u into the users table.
func SeedUser(t testing.TB, db *sql.DB, u models.User) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO users (id, username, full_name, role, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.UserName, u.FullName, u.Role, u.Status, time.Now().UnixNano(),
	)
	require.NoError(t, err)
}

// CountActive returns how many active records ownerID holds.
func CountActive(t testing.TB, db *sql.DB, ownerID string) int {
	t.Helper()

	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM user_qr_codes WHERE user_id = ? AND is_active = 1 AND revoked_at IS NULL`,
		ownerID,
	).Scan(&n)
	require.NoError(t, err)
	return n
}
