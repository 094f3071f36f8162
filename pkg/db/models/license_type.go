package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LicenseType is a priced catalog entry for one product category + test type
// combination. Rows referenced by ledger entries are never deleted; only the
// active flag toggles.
type LicenseType struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name            string          `gorm:"column:name;not null"`
	ProductCategory string          `gorm:"column:product_category;not null"`
	TestType        string          `gorm:"column:test_type;not null"`
	UnitPrice       decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Description     string          `gorm:"column:description"`
	Active          bool            `gorm:"column:active;not null;default:true"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
