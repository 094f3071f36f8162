package reports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UsageRow is one aggregated (tenant, license type) usage line. QuantityUsed
// counts consumed tests; TotalPrice is filled in by the service.
type UsageRow struct {
	TenantID        uuid.UUID       `gorm:"column:tenant_id"`
	TenantName      string          `gorm:"column:tenant_name"`
	LicenseTypeName string          `gorm:"column:license_type_name"`
	ProductCategory string          `gorm:"column:product_category"`
	TestType        string          `gorm:"column:test_type"`
	QuantityUsed    int64           `gorm:"column:quantity_used"`
	UnitPrice       decimal.Decimal `gorm:"column:unit_price"`
	TotalPrice      decimal.Decimal `gorm:"-"`
}

// Repository aggregates usage entries for billing reports.
type Repository interface {
	Usage(ctx context.Context, start, end time.Time, tenantID *uuid.UUID) ([]UsageRow, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reports repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Usage(ctx context.Context, start, end time.Time, tenantID *uuid.UUID) ([]UsageRow, error) {
	query := `
SELECT lle.tenant_id,
       t.name AS tenant_name,
       lt.name AS license_type_name,
       lt.product_category,
       lt.test_type,
       SUM(-lle.amount) AS quantity_used,
       lt.unit_price
FROM license_ledger_entries lle
JOIN license_types lt ON lt.id = lle.license_type_id
JOIN tenants t ON t.id = lle.tenant_id
WHERE lle.transaction_type = 'usage'
  AND lle.created_at >= ?
  AND lle.created_at <= ?`
	args := []any{start, end}

	if tenantID != nil {
		query += ` AND lle.tenant_id = ?`
		args = append(args, *tenantID)
	}

	query += `
GROUP BY lle.tenant_id, t.name, lt.name, lt.product_category, lt.test_type, lt.unit_price
ORDER BY t.name ASC, lt.product_category ASC, lt.test_type ASC`

	var rows []UsageRow
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
