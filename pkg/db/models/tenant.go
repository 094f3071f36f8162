package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/refurbhq/testbench-backend/pkg/enums"
)

// Tenant is owned by tenant management; the licensing core only reads the
// account type and display name.
type Tenant struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string            `gorm:"column:name;not null"`
	AccountType  enums.AccountType `gorm:"column:account_type;type:account_type_enum;not null;default:prepaid"`
	ContactEmail string            `gorm:"column:contact_email"`
	Active       bool              `gorm:"column:active;not null;default:true"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
