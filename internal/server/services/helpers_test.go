package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/atiera/qrlogin/internal/cryptox"
	"github.com/atiera/qrlogin/internal/logging"
	"github.com/atiera/qrlogin/internal/server/config"
	"github.com/atiera/qrlogin/internal/server/models"
	"github.com/atiera/qrlogin/internal/server/repositories/repomanager"
	"github.com/atiera/qrlogin/internal/server/storetest"
	"github.com/stretchr/testify/require"
)

const testAppKey = "portal-app-key-for-tests"

type recordingSink struct {
	mu     sync.Mutex
	events []models.AuditEvent
	err    error
}

func (s *recordingSink) Record(ctx context.Context, event models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Events() []models.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditEvent(nil), s.events...)
}

// testClock hands out strictly increasing times unless set explicitly.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.Add(-time.Second)
}

type fixture struct {
	db    *sql.DB
	rm    repomanager.RepositoryManager
	sink  *recordingSink
	clock *testClock
	cfg   *config.Config
	svc   *QRCodeService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := storetest.NewSQLite(t)
	rm, err := repomanager.NewSQLiteRepositoryManager(db)
	require.NoError(t, err)

	storetest.SeedUser(t, db, models.User{ID: "42", UserName: "jdoe", FullName: "Jane Doe", Role: "staff", Status: "active"})
	storetest.SeedUser(t, db, models.User{ID: "7", UserName: "boss", FullName: "The Boss", Role: "admin", Status: "active"})
	storetest.SeedUser(t, db, models.User{ID: "1", UserName: "root", FullName: "Root", Role: "super_admin", Status: "active"})
	storetest.SeedUser(t, db, models.User{ID: "9", UserName: "gone", FullName: "Gone Away", Role: "staff", Status: "inactive"})

	cipher, err := cryptox.NewTokenCipher(testAppKey)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.AppKey = testAppKey
	cfg.AppURL = "https://portal.example.com/"

	f := &fixture{db: db, rm: rm, sink: &recordingSink{}, clock: newTestClock(), cfg: cfg}
	f.svc = NewQRCodeService(db, rm, cipher, f.sink, logging.Nop{}, cfg)
	f.svc.now = f.clock.Now
	return f
}

// insertCode stores an active code for an owner the service would refuse.
func (f *fixture) insertCode(t *testing.T, ownerID string) string {
	t.Helper()

	raw, err := cryptox.NewRawToken()
	require.NoError(t, err)
	ct, iv, err := f.svc.cipher.Encrypt(raw)
	require.NoError(t, err)

	err = f.rm.QRCodes(f.db).Create(context.Background(), &models.QRCode{
		ID: "seed-" + ownerID, OwnerID: ownerID, TokenHash: cryptox.HashToken(raw),
		TokenCipher: ct, TokenIV: iv, CreatedAt: f.clock.Now(),
	})
	require.NoError(t, err)
	return raw
}
