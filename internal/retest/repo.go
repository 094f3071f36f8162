package retest

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/refurbhq/testbench-backend/pkg/db/models"
)

// Repository manages device activation windows. Activations accumulate as
// history; the governing row for a retest decision is the one with the
// greatest retest_valid_until.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LatestWindow(ctx context.Context, deviceIdentifier string, licenseTypeID, tenantID uuid.UUID) (*models.DeviceLicense, error)
	Activate(ctx context.Context, activation *models.DeviceLicense) error
	ListByDevice(ctx context.Context, deviceIdentifier string, tenantID uuid.UUID) ([]models.DeviceLicense, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a device license repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) LatestWindow(ctx context.Context, deviceIdentifier string, licenseTypeID, tenantID uuid.UUID) (*models.DeviceLicense, error) {
	var row models.DeviceLicense
	err := r.db.WithContext(ctx).
		Where("device_identifier = ? AND license_type_id = ? AND tenant_id = ?", deviceIdentifier, licenseTypeID, tenantID).
		Order("retest_valid_until DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) Activate(ctx context.Context, activation *models.DeviceLicense) error {
	if activation.ID == uuid.Nil {
		activation.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(activation).Error
}

func (r *repository) ListByDevice(ctx context.Context, deviceIdentifier string, tenantID uuid.UUID) ([]models.DeviceLicense, error) {
	var rows []models.DeviceLicense
	err := r.db.WithContext(ctx).
		Where("device_identifier = ? AND tenant_id = ?", deviceIdentifier, tenantID).
		Order("activated_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
