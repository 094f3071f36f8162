package ledger

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/refurbhq/testbench-backend/pkg/db/models"
	"github.com/refurbhq/testbench-backend/pkg/enums"
	"github.com/refurbhq/testbench-backend/pkg/pagination"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:ledger_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	licenseTypes := `
CREATE TABLE IF NOT EXISTS license_types (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  product_category TEXT NOT NULL,
  test_type TEXT NOT NULL,
  unit_price TEXT NOT NULL DEFAULT '0',
  description TEXT,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	entries := `
CREATE TABLE IF NOT EXISTS license_ledger_entries (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  license_type_id TEXT NOT NULL,
  amount INTEGER NOT NULL,
  transaction_type TEXT NOT NULL,
  reference_type TEXT NOT NULL,
  reference_id TEXT,
  device_identifier TEXT,
  notes TEXT,
  created_by TEXT,
  created_at DATETIME
);`
	outboxEvents := `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  published_at DATETIME,
  created_at DATETIME
);`
	require.NoError(t, conn.Exec(licenseTypes).Error)
	require.NoError(t, conn.Exec(entries).Error)
	require.NoError(t, conn.Exec(outboxEvents).Error)
	return conn
}

func newLicenseType(t *testing.T, conn *gorm.DB, category, testType string) *models.LicenseType {
	t.Helper()
	row := &models.LicenseType{
		ID:              uuid.New(),
		Name:            category + " " + testType,
		ProductCategory: category,
		TestType:        testType,
		Active:          true,
	}
	require.NoError(t, conn.Create(row).Error)
	return row
}

func appendEntry(t *testing.T, repo Repository, tenantID, typeID uuid.UUID, amount int, txType enums.TransactionType, createdAt time.Time) *models.LicenseLedgerEntry {
	t.Helper()
	entry := &models.LicenseLedgerEntry{
		TenantID:        tenantID,
		LicenseTypeID:   typeID,
		Amount:          amount,
		TransactionType: txType,
		ReferenceType:   "test",
		CreatedAt:       createdAt,
	}
	require.NoError(t, repo.Append(context.Background(), entry))
	return entry
}

func TestBalanceIsSumOfSignedAmounts(t *testing.T) {
	conn := setupLedgerTestDB(t)
	repo := NewRepository(conn)
	tenantID := uuid.New()
	lt := newLicenseType(t, conn, "smartphone", "full_diagnostic")

	now := time.Now().UTC()
	appendEntry(t, repo, tenantID, lt.ID, 100, enums.TransactionTypePurchase, now)
	appendEntry(t, repo, tenantID, lt.ID, -1, enums.TransactionTypeUsage, now)
	appendEntry(t, repo, tenantID, lt.ID, -1, enums.TransactionTypeUsage, now)
	appendEntry(t, repo, tenantID, lt.ID, 5, enums.TransactionTypeAdjustment, now)

	balance, err := repo.Balance(context.Background(), tenantID, lt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(103), balance)
}

func TestBalanceEmptyLedgerIsZero(t *testing.T) {
	conn := setupLedgerTestDB(t)
	repo := NewRepository(conn)

	balance, err := repo.Balance(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestTenantBalancesIncludesZeroTypes(t *testing.T) {
	conn := setupLedgerTestDB(t)
	repo := NewRepository(conn)
	tenantID := uuid.New()
	funded := newLicenseType(t, conn, "laptop", "battery")
	newLicenseType(t, conn, "tablet", "screen")

	appendEntry(t, repo, tenantID, funded.ID, 10, enums.TransactionTypePurchase, time.Now().UTC())

	rows, err := repo.TenantBalances(context.Background(), tenantID, "")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byType := map[uuid.UUID]int64{}
	for _, row := range rows {
		byType[row.LicenseTypeID] = row.Balance
	}
	assert.Equal(t, int64(10), byType[funded.ID])
}

func TestTenantBalancesScopedToTenant(t *testing.T) {
	conn := setupLedgerTestDB(t)
	repo := NewRepository(conn)
	lt := newLicenseType(t, conn, "wearable", "sensor")

	tenantA := uuid.New()
	tenantB := uuid.New()
	appendEntry(t, repo, tenantA, lt.ID, 7, enums.TransactionTypePurchase, time.Now().UTC())
	appendEntry(t, repo, tenantB, lt.ID, 3, enums.TransactionTypePurchase, time.Now().UTC())

	rows, err := repo.TenantBalances(context.Background(), tenantA, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(7), rows[0].Balance)
}

func TestConditionalDebitSucceedsWithBalance(t *testing.T) {
	conn := setupLedgerTestDB(t)
	repo := NewRepository(conn)
	tenantID := uuid.New()
	lt := newLicenseType(t, conn, "smartphone", "battery")

	appendEntry(t, repo, tenantID, lt.ID, 1, enums.TransactionTypePurchase, time.Now().UTC())

	entry, ok, err := repo.ConditionalDebit(context.Background(), DebitInput{
		TenantID:         tenantID,
		LicenseTypeID:    lt.ID,
		Quantity:         1,
		ReferenceType:    "test_authorization",
		DeviceIdentifier: "SN-001",
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, -1, entry.Amount)
	assert.Equal(t, enums.TransactionTypeUsage, entry.TransactionType)

	balance, err := repo.Balance(context.Background(), tenantID, lt.ID)
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestConditionalDebitRefusesOverdraw(t *testing.T) {
	conn := setupLedgerTestDB(t)
	repo := NewRepository(conn)
	tenantID := uuid.New()
	lt := newLicenseType(t, conn, "smartphone", "battery")

	appendEntry(t, repo, tenantID, lt.ID, 1, enums.TransactionTypePurchase, time.Now().UTC())

	_, ok, err := repo.ConditionalDebit(context.Background(), DebitInput{
		TenantID:      tenantID,
		LicenseTypeID: lt.ID,
		Quantity:      1,
		ReferenceType: "test_authorization",
	})
	require.NoError(t, err)
	require.True(t, ok)

	// Balance is now zero; the second debit must not land.
	entry, ok, err := repo.ConditionalDebit(context.Background(), DebitInput{
		TenantID:      tenantID,
		LicenseTypeID: lt.ID,
		Quantity:      1,
		ReferenceType: "test_authorization",
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, entry)

	balance, err := repo.Balance(context.Background(), tenantID, lt.ID)
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestConditionalDebitZeroBalanceEmptyLedger(t *testing.T) {
	conn := setupLedgerTestDB(t)
	repo := NewRepository(conn)

	_, ok, err := repo.ConditionalDebit(context.Background(), DebitInput{
		TenantID:      uuid.New(),
		LicenseTypeID: uuid.New(),
		Quantity:      1,
		ReferenceType: "test_authorization",
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

// statementRecorder captures every SQL statement GORM executes so tests can
// assert statement ordering.
type statementRecorder struct {
	statements []string
}

func (r *statementRecorder) LogMode(gormlogger.LogLevel) gormlogger.Interface { return r }
func (r *statementRecorder) Info(context.Context, string, ...any)             {}
func (r *statementRecorder) Warn(context.Context, string, ...any)             {}
func (r *statementRecorder) Error(context.Context, string, ...any)            {}

func (r *statementRecorder) Trace(_ context.Context, _ time.Time, fc func() (string, int64), _ error) {
	sql, _ := fc()
	r.statements = append(r.statements, sql)
}

// Two concurrent debits must not both observe the same balance: the debit has
// to lock the license type row before reading the running sum, so same-type
// debits queue behind each other inside their transactions.
func TestConditionalDebitLocksLicenseTypeBeforeInsert(t *testing.T) {
	conn := setupLedgerTestDB(t)
	tenantID := uuid.New()
	lt := newLicenseType(t, conn, "smartphone", "battery")
	appendEntry(t, NewRepository(conn), tenantID, lt.ID, 1, enums.TransactionTypePurchase, time.Now().UTC())

	rec := &statementRecorder{}
	repo := NewRepository(conn.Session(&gorm.Session{Logger: rec}))

	_, ok, err := repo.ConditionalDebit(context.Background(), DebitInput{
		TenantID:      tenantID,
		LicenseTypeID: lt.ID,
		Quantity:      1,
		ReferenceType: "test_authorization",
	})
	require.NoError(t, err)
	require.True(t, ok)

	lockIdx, insertIdx := -1, -1
	for i, stmt := range rec.statements {
		switch {
		case strings.Contains(stmt, "UPDATE license_types"):
			if lockIdx == -1 {
				lockIdx = i
			}
		case strings.Contains(stmt, "INSERT INTO license_ledger_entries"):
			insertIdx = i
		}
	}
	require.NotEqual(t, -1, lockIdx, "expected a license_types lock statement")
	require.NotEqual(t, -1, insertIdx, "expected the guarded insert")
	assert.Less(t, lockIdx, insertIdx, "license type row must be locked before the guarded insert")
}

func TestHistoryFiltersAndPaginates(t *testing.T) {
	conn := setupLedgerTestDB(t)
	repo := NewRepository(conn)
	tenantID := uuid.New()
	lt := newLicenseType(t, conn, "laptop", "keyboard")
	other := newLicenseType(t, conn, "laptop", "screen")

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		appendEntry(t, repo, tenantID, lt.ID, 1, enums.TransactionTypePurchase, base.Add(time.Duration(i)*time.Minute))
	}
	appendEntry(t, repo, tenantID, other.ID, 1, enums.TransactionTypePurchase, base.Add(10*time.Minute))
	appendEntry(t, repo, tenantID, lt.ID, -1, enums.TransactionTypeUsage, base.Add(11*time.Minute))

	usage := enums.TransactionTypeUsage
	rows, err := repo.History(context.Background(), tenantID, HistoryFilter{TransactionType: &usage}, 10, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, -1, rows[0].Amount)

	rows, err = repo.History(context.Background(), tenantID, HistoryFilter{LicenseTypeID: &lt.ID}, 3, nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	// Newest first.
	assert.Equal(t, -1, rows[0].Amount)

	cursor := &pagination.Cursor{CreatedAt: rows[2].CreatedAt, ID: rows[2].ID}
	next, err := repo.History(context.Background(), tenantID, HistoryFilter{LicenseTypeID: &lt.ID}, 10, cursor)
	require.NoError(t, err)
	require.Len(t, next, 3)
	for _, row := range next {
		assert.True(t, row.CreatedAt.Before(rows[2].CreatedAt) ||
			(row.CreatedAt.Equal(rows[2].CreatedAt) && row.ID.String() < rows[2].ID.String()))
	}
}
