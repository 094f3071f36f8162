package reports

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/refurbhq/testbench-backend/pkg/db/models"
	"github.com/refurbhq/testbench-backend/pkg/enums"
	pkgerrors "github.com/refurbhq/testbench-backend/pkg/errors"
)

func setupReportsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:reports_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{`
CREATE TABLE IF NOT EXISTS tenants (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  account_type TEXT NOT NULL DEFAULT 'prepaid',
  contact_email TEXT,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`, `
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
);`, `
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
);`}
	for _, stmt := range statements {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

type reportFixture struct {
	svc  Service
	conn *gorm.DB
}

func newReportFixture(t *testing.T) *reportFixture {
	t.Helper()
	conn := setupReportsTestDB(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	return &reportFixture{svc: svc, conn: conn}
}

func (f *reportFixture) newTenant(t *testing.T, name string) uuid.UUID {
	t.Helper()
	row := &models.Tenant{ID: uuid.New(), Name: name, AccountType: enums.AccountTypePrepaid, Active: true}
	require.NoError(t, f.conn.Create(row).Error)
	return row.ID
}

func (f *reportFixture) newLicenseType(t *testing.T, category, testType string, price float64) uuid.UUID {
	t.Helper()
	row := &models.LicenseType{
		ID:              uuid.New(),
		Name:            category + " " + testType,
		ProductCategory: category,
		TestType:        testType,
		UnitPrice:       decimal.NewFromFloat(price),
		Active:          true,
	}
	require.NoError(t, f.conn.Create(row).Error)
	return row.ID
}

func (f *reportFixture) record(t *testing.T, tenantID, typeID uuid.UUID, amount int, txType enums.TransactionType, at time.Time) {
	t.Helper()
	entry := &models.LicenseLedgerEntry{
		ID:              uuid.New(),
		TenantID:        tenantID,
		LicenseTypeID:   typeID,
		Amount:          amount,
		TransactionType: txType,
		ReferenceType:   "test",
		CreatedAt:       at,
	}
	require.NoError(t, f.conn.Create(entry).Error)
}

func TestUsageReportAggregates(t *testing.T) {
	f := newReportFixture(t)
	tenantID := f.newTenant(t, "Refurb Co")
	typeID := f.newLicenseType(t, "smartphone", "full_diagnostic", 2.50)

	now := time.Now().UTC()
	f.record(t, tenantID, typeID, -1, enums.TransactionTypeUsage, now.Add(-2*time.Hour))
	f.record(t, tenantID, typeID, -1, enums.TransactionTypeUsage, now.Add(-time.Hour))
	// Purchases and adjustments never count as usage.
	f.record(t, tenantID, typeID, 10, enums.TransactionTypePurchase, now.Add(-time.Hour))
	f.record(t, tenantID, typeID, 2, enums.TransactionTypeAdjustment, now.Add(-time.Hour))

	rows, err := f.svc.UsageReport(context.Background(), now.Add(-24*time.Hour), now, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].QuantityUsed)
	assert.True(t, rows[0].UnitPrice.Equal(decimal.NewFromFloat(2.50)), rows[0].UnitPrice.String())
	assert.True(t, rows[0].TotalPrice.Equal(decimal.NewFromFloat(5.00)), rows[0].TotalPrice.String())
}

func TestUsageReportRespectsPeriod(t *testing.T) {
	f := newReportFixture(t)
	tenantID := f.newTenant(t, "Refurb Co")
	typeID := f.newLicenseType(t, "laptop", "battery", 1.00)

	now := time.Now().UTC()
	f.record(t, tenantID, typeID, -1, enums.TransactionTypeUsage, now.Add(-72*time.Hour))
	f.record(t, tenantID, typeID, -1, enums.TransactionTypeUsage, now.Add(-time.Hour))

	rows, err := f.svc.UsageReport(context.Background(), now.Add(-24*time.Hour), now, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].QuantityUsed)
}

func TestUsageReportFiltersTenant(t *testing.T) {
	f := newReportFixture(t)
	tenantA := f.newTenant(t, "Alpha Refurb")
	tenantB := f.newTenant(t, "Beta Refurb")
	typeID := f.newLicenseType(t, "tablet", "screen", 3.00)

	now := time.Now().UTC()
	f.record(t, tenantA, typeID, -1, enums.TransactionTypeUsage, now.Add(-time.Hour))
	f.record(t, tenantB, typeID, -1, enums.TransactionTypeUsage, now.Add(-time.Hour))

	rows, err := f.svc.UsageReport(context.Background(), now.Add(-24*time.Hour), now, &tenantA)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, tenantA, rows[0].TenantID)
}

func TestUsageReportValidation(t *testing.T) {
	f := newReportFixture(t)
	now := time.Now().UTC()

	_, err := f.svc.UsageReport(context.Background(), now, now.Add(-time.Hour), nil)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	_, err = f.svc.UsageReport(context.Background(), time.Time{}, now, nil)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestWriteUsageReportCSV(t *testing.T) {
	tenantID := uuid.New()
	rows := []UsageRow{{
		TenantID:        tenantID,
		TenantName:      "Refurb Co",
		LicenseTypeName: "smartphone full_diagnostic",
		ProductCategory: "smartphone",
		TestType:        "full_diagnostic",
		QuantityUsed:    4,
		UnitPrice:       decimal.NewFromFloat(2.50),
		TotalPrice:      decimal.NewFromFloat(10.00),
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteUsageReportCSV(&buf, rows))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "tenant_id,tenant_name,license_type,product_category,test_type,quantity_used,unit_price,total_price", lines[0])
	assert.Equal(t, tenantID.String()+",Refurb Co,smartphone full_diagnostic,smartphone,full_diagnostic,4,2.50,10.00", lines[1])
}

func TestWriteUsageReportCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteUsageReportCSV(&buf, nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 1, "header only")
}
