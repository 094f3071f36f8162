package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/refurbhq/testbench-backend/pkg/enums"
	"github.com/refurbhq/testbench-backend/pkg/types"
)

// LicenseRequest is a tenant's ask for additional license balance. It leaves
// pending exactly once, to approved or rejected.
type LicenseRequest struct {
	ID              uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID        uuid.UUID                  `gorm:"column:tenant_id;type:uuid;not null"`
	RequestedBy     uuid.UUID                  `gorm:"column:requested_by;type:uuid;not null"`
	Status          enums.LicenseRequestStatus `gorm:"column:status;type:license_request_status_enum;not null;default:pending"`
	Items           types.LicenseRequestItems  `gorm:"column:items;type:jsonb;not null"`
	Notes           string                     `gorm:"column:notes"`
	ReviewedBy      *uuid.UUID                 `gorm:"column:reviewed_by;type:uuid"`
	ReviewedAt      *time.Time                 `gorm:"column:reviewed_at"`
	RejectionReason string                     `gorm:"column:rejection_reason"`
	CreatedAt       time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}
