package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/refurbhq/testbench-backend/pkg/enums"
)

// LicenseLedgerEntry records one signed balance movement for a tenant and
// license type. Rows are append-only; the balance of a (tenant, license type)
// pair is defined as the sum of amounts over its entries and nothing else.
type LicenseLedgerEntry struct {
	ID               uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID         uuid.UUID             `gorm:"column:tenant_id;type:uuid;not null"`
	LicenseTypeID    uuid.UUID             `gorm:"column:license_type_id;type:uuid;not null"`
	Amount           int                   `gorm:"column:amount;not null"`
	TransactionType  enums.TransactionType `gorm:"column:transaction_type;type:transaction_type_enum;not null"`
	ReferenceType    string                `gorm:"column:reference_type;not null"`
	ReferenceID      *uuid.UUID            `gorm:"column:reference_id;type:uuid"`
	DeviceIdentifier string                `gorm:"column:device_identifier"`
	Notes            string                `gorm:"column:notes"`
	CreatedBy        *uuid.UUID            `gorm:"column:created_by;type:uuid"`
	CreatedAt        time.Time             `gorm:"column:created_at;autoCreateTime"`
}
