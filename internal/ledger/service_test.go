package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbpkg "github.com/refurbhq/testbench-backend/pkg/db"
	"github.com/refurbhq/testbench-backend/pkg/db/models"
	"github.com/refurbhq/testbench-backend/pkg/enums"
	pkgerrors "github.com/refurbhq/testbench-backend/pkg/errors"
	"github.com/refurbhq/testbench-backend/pkg/outbox"
	"github.com/refurbhq/testbench-backend/pkg/pagination"
)

type catalogStub struct {
	conn *gorm.DB
}

func (c catalogStub) FindByID(ctx context.Context, id uuid.UUID) (*models.LicenseType, error) {
	var row models.LicenseType
	err := c.conn.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func newLedgerService(t *testing.T) (Service, Repository, *dbpkg.Client, *gorm.DB) {
	t.Helper()
	conn := setupLedgerTestDB(t)

	client, err := dbpkg.NewWithConn(conn)
	require.NoError(t, err)

	repo := NewRepository(conn)
	events := outbox.NewService(outbox.NewRepository(conn), nil)

	svc, err := NewService(client, repo, catalogStub{conn: conn}, events, nil)
	require.NoError(t, err)
	return svc, repo, client, conn
}

func TestManualAdjustmentAppendsAndEmits(t *testing.T) {
	svc, repo, client, _ := newLedgerService(t)
	tenantID := uuid.New()
	typeID := uuid.New()
	adminID := uuid.New()

	entry, err := svc.ManualAdjustment(context.Background(), ManualAdjustmentInput{
		TenantID:      tenantID,
		LicenseTypeID: typeID,
		Amount:        -5,
		Notes:         "correcting double grant",
		AdminID:       adminID,
	})
	require.NoError(t, err)
	assert.Equal(t, -5, entry.Amount)
	assert.Equal(t, enums.TransactionTypeAdjustment, entry.TransactionType)
	assert.Equal(t, "manual_adjustment", entry.ReferenceType)
	require.NotNil(t, entry.CreatedBy)
	assert.Equal(t, adminID, *entry.CreatedBy)

	balance, err := repo.Balance(context.Background(), tenantID, typeID)
	require.NoError(t, err)
	assert.Equal(t, int64(-5), balance)

	var events []models.OutboxEvent
	require.NoError(t, client.DB().Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.OutboxEventTypeLedgerAdjustmentApplied, events[0].EventType)
	assert.Equal(t, entry.ID, events[0].AggregateID)
}

func TestManualAdjustmentValidation(t *testing.T) {
	svc, _, _, _ := newLedgerService(t)

	cases := []struct {
		name  string
		input ManualAdjustmentInput
	}{
		{"zero amount", ManualAdjustmentInput{
			TenantID: uuid.New(), LicenseTypeID: uuid.New(), Notes: "x", AdminID: uuid.New(),
		}},
		{"missing notes", ManualAdjustmentInput{
			TenantID: uuid.New(), LicenseTypeID: uuid.New(), Amount: 1, AdminID: uuid.New(),
		}},
		{"missing tenant", ManualAdjustmentInput{
			LicenseTypeID: uuid.New(), Amount: 1, Notes: "x", AdminID: uuid.New(),
		}},
		{"missing admin", ManualAdjustmentInput{
			TenantID: uuid.New(), LicenseTypeID: uuid.New(), Amount: 1, Notes: "x",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ManualAdjustment(context.Background(), tc.input)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed, "expected typed error, got %v", err)
			assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
		})
	}
}

func TestQuickGrantAppendsPurchases(t *testing.T) {
	svc, repo, client, conn := newLedgerService(t)
	tenantID := uuid.New()
	battery := newLicenseType(t, conn, "smartphone", "battery")
	screen := newLicenseType(t, conn, "smartphone", "screen")

	entries, err := svc.QuickGrant(context.Background(), QuickGrantInput{
		TenantID: tenantID,
		Items: []GrantItem{
			{LicenseTypeID: battery.ID, Quantity: 50},
			{LicenseTypeID: screen.ID, Quantity: 10},
		},
		Notes:   "trial batch",
		AdminID: uuid.New(),
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, enums.TransactionTypePurchase, entry.TransactionType)
		assert.Equal(t, "quick_grant", entry.ReferenceType)
	}

	balance, err := repo.Balance(context.Background(), tenantID, battery.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)

	balance, err = repo.Balance(context.Background(), tenantID, screen.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)

	var events []models.OutboxEvent
	require.NoError(t, client.DB().Find(&events).Error)
	assert.Len(t, events, 2)
}

func TestQuickGrantRejectsUnknownType(t *testing.T) {
	svc, _, client, conn := newLedgerService(t)
	known := newLicenseType(t, conn, "laptop", "battery")

	_, err := svc.QuickGrant(context.Background(), QuickGrantInput{
		TenantID: uuid.New(),
		Items: []GrantItem{
			{LicenseTypeID: known.ID, Quantity: 5},
			{LicenseTypeID: uuid.New(), Quantity: 5},
		},
		AdminID: uuid.New(),
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	// All-or-nothing: the known item must not have landed either.
	var count int64
	require.NoError(t, client.DB().Model(&models.LicenseLedgerEntry{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestQuickGrantRejectsNonPositiveQuantity(t *testing.T) {
	svc, _, _, conn := newLedgerService(t)
	lt := newLicenseType(t, conn, "tablet", "screen")

	for _, qty := range []int{0, -3} {
		_, err := svc.QuickGrant(context.Background(), QuickGrantInput{
			TenantID: uuid.New(),
			Items:    []GrantItem{{LicenseTypeID: lt.ID, Quantity: qty}},
			AdminID:  uuid.New(),
		})
		typed := pkgerrors.As(err)
		require.NotNil(t, typed, "qty %d", qty)
		assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	}
}

func TestBalancesSearchFilters(t *testing.T) {
	svc, repo, _, conn := newLedgerService(t)
	tenantID := uuid.New()
	battery := newLicenseType(t, conn, "smartphone", "battery")
	newLicenseType(t, conn, "laptop", "keyboard")

	appendEntry(t, repo, tenantID, battery.ID, 4, enums.TransactionTypePurchase, time.Now().UTC())

	rows, err := svc.Balances(context.Background(), tenantID, "battery")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(4), rows[0].Balance)
}

func TestHistoryPagesWithCursor(t *testing.T) {
	svc, repo, _, _ := newLedgerService(t)
	tenantID := uuid.New()
	typeID := uuid.New()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		appendEntry(t, repo, tenantID, typeID, 1, enums.TransactionTypePurchase, base.Add(time.Duration(i)*time.Minute))
	}

	first, err := svc.History(context.Background(), tenantID, HistoryParams{
		Page: pagination.Params{Limit: 3},
	})
	require.NoError(t, err)
	require.Len(t, first.Entries, 3)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.History(context.Background(), tenantID, HistoryParams{
		Page: pagination.Params{Limit: 3, Cursor: first.NextCursor},
	})
	require.NoError(t, err)
	require.Len(t, second.Entries, 1)
	assert.Empty(t, second.NextCursor)
}

func TestHistoryRejectsBadCursor(t *testing.T) {
	svc, _, _, _ := newLedgerService(t)

	_, err := svc.History(context.Background(), uuid.New(), HistoryParams{
		Page: pagination.Params{Cursor: "not-base64!!"},
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}
