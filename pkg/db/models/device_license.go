package models

import (
	"time"

	"github.com/google/uuid"
)

// DeviceLicense is one activation window for a device. Rows accumulate as
// history; the governing row for a retest decision is the one with the
// greatest retest_valid_until.
type DeviceLicense struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DeviceIdentifier string     `gorm:"column:device_identifier;not null"`
	LicenseTypeID    uuid.UUID  `gorm:"column:license_type_id;type:uuid;not null"`
	TenantID         uuid.UUID  `gorm:"column:tenant_id;type:uuid;not null"`
	ActivatedAt      time.Time  `gorm:"column:activated_at;not null"`
	RetestValidUntil time.Time  `gorm:"column:retest_valid_until;not null"`
	LedgerEntryID    *uuid.UUID `gorm:"column:ledger_entry_id;type:uuid"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
}
