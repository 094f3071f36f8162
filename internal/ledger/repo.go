package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/refurbhq/testbench-backend/pkg/db/models"
	"github.com/refurbhq/testbench-backend/pkg/enums"
	"github.com/refurbhq/testbench-backend/pkg/pagination"
)

// BalanceRow is one (license type, balance) pair for a tenant. Balance is the
// sum of signed ledger amounts and is computed, never stored.
type BalanceRow struct {
	LicenseTypeID   uuid.UUID `gorm:"column:license_type_id"`
	LicenseTypeName string    `gorm:"column:license_type_name"`
	ProductCategory string    `gorm:"column:product_category"`
	TestType        string    `gorm:"column:test_type"`
	Active          bool      `gorm:"column:active"`
	Balance         int64     `gorm:"column:balance"`
}

// HistoryFilter narrows a ledger history listing.
type HistoryFilter struct {
	LicenseTypeID   *uuid.UUID
	TransactionType *enums.TransactionType
	Search          string
}

// DebitInput describes a single-statement conditional usage debit.
type DebitInput struct {
	TenantID         uuid.UUID
	LicenseTypeID    uuid.UUID
	Quantity         int
	ReferenceType    string
	ReferenceID      *uuid.UUID
	DeviceIdentifier string
	CreatedBy        *uuid.UUID
}

// Repository manages persistence for the append-only license ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, entry *models.LicenseLedgerEntry) error
	Balance(ctx context.Context, tenantID, licenseTypeID uuid.UUID) (int64, error)
	TenantBalances(ctx context.Context, tenantID uuid.UUID, search string) ([]BalanceRow, error)
	ConditionalDebit(ctx context.Context, input DebitInput) (*models.LicenseLedgerEntry, bool, error)
	History(ctx context.Context, tenantID uuid.UUID, filter HistoryFilter, limit int, cursor *pagination.Cursor) ([]models.LicenseLedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Append(ctx context.Context, entry *models.LicenseLedgerEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) Balance(ctx context.Context, tenantID, licenseTypeID uuid.UUID) (int64, error) {
	var balance int64
	err := r.db.WithContext(ctx).
		Model(&models.LicenseLedgerEntry{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("tenant_id = ? AND license_type_id = ?", tenantID, licenseTypeID).
		Scan(&balance).Error
	return balance, err
}

func (r *repository) TenantBalances(ctx context.Context, tenantID uuid.UUID, search string) ([]BalanceRow, error) {
	query := `
SELECT lt.id AS license_type_id,
       lt.name AS license_type_name,
       lt.product_category,
       lt.test_type,
       lt.active,
       COALESCE(SUM(lle.amount), 0) AS balance
FROM license_types lt
LEFT JOIN license_ledger_entries lle
  ON lle.license_type_id = lt.id AND lle.tenant_id = ?
WHERE lt.active = ?`
	args := []any{tenantID, true}

	if s := strings.TrimSpace(search); s != "" {
		query += ` AND (lt.name LIKE ? OR lt.product_category LIKE ? OR lt.test_type LIKE ?)`
		pattern := "%" + s + "%"
		args = append(args, pattern, pattern, pattern)
	}

	query += `
GROUP BY lt.id, lt.name, lt.product_category, lt.test_type, lt.active
ORDER BY lt.product_category ASC, lt.test_type ASC`

	var rows []BalanceRow
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ConditionalDebit appends a usage entry only when the current balance covers
// the quantity. It must run inside the caller's transaction: it first takes a
// write lock on the license type row, then guards the insert on the running
// sum. Plain INSERTs never conflict with each other, so without the lock two
// concurrent debits could both read the same pre-insert sum and overdraw the
// account.
func (r *repository) ConditionalDebit(ctx context.Context, input DebitInput) (*models.LicenseLedgerEntry, bool, error) {
	// No-op update that only exists to take the row lock. Affecting zero
	// rows is fine: an unknown license type fails the balance guard below.
	lock := r.db.WithContext(ctx).Exec(
		`UPDATE license_types SET updated_at = updated_at WHERE id = ?`,
		input.LicenseTypeID,
	)
	if lock.Error != nil {
		return nil, false, lock.Error
	}

	entry := &models.LicenseLedgerEntry{
		ID:               uuid.New(),
		TenantID:         input.TenantID,
		LicenseTypeID:    input.LicenseTypeID,
		Amount:           -input.Quantity,
		TransactionType:  enums.TransactionTypeUsage,
		ReferenceType:    input.ReferenceType,
		ReferenceID:      input.ReferenceID,
		DeviceIdentifier: input.DeviceIdentifier,
		CreatedBy:        input.CreatedBy,
		CreatedAt:        time.Now().UTC(),
	}

	result := r.db.WithContext(ctx).Exec(`
INSERT INTO license_ledger_entries
    (id, tenant_id, license_type_id, amount, transaction_type, reference_type, reference_id, device_identifier, notes, created_by, created_at)
SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
WHERE (
    SELECT COALESCE(SUM(amount), 0)
    FROM license_ledger_entries
    WHERE tenant_id = ? AND license_type_id = ?
) >= ?`,
		entry.ID, entry.TenantID, entry.LicenseTypeID, entry.Amount, entry.TransactionType,
		entry.ReferenceType, entry.ReferenceID, entry.DeviceIdentifier, entry.Notes,
		entry.CreatedBy, entry.CreatedAt,
		input.TenantID, input.LicenseTypeID, input.Quantity,
	)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, false, nil
	}
	return entry, true, nil
}

func (r *repository) History(ctx context.Context, tenantID uuid.UUID, filter HistoryFilter, limit int, cursor *pagination.Cursor) ([]models.LicenseLedgerEntry, error) {
	query := r.db.WithContext(ctx).
		Model(&models.LicenseLedgerEntry{}).
		Where("tenant_id = ?", tenantID)

	if filter.LicenseTypeID != nil {
		query = query.Where("license_type_id = ?", *filter.LicenseTypeID)
	}
	if filter.TransactionType != nil {
		query = query.Where("transaction_type = ?", *filter.TransactionType)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("device_identifier LIKE ? OR notes LIKE ?", pattern, pattern)
	}
	if cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.LicenseLedgerEntry
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
