package requests

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/refurbhq/testbench-backend/pkg/db/models"
	"github.com/refurbhq/testbench-backend/pkg/enums"
	"github.com/refurbhq/testbench-backend/pkg/pagination"
)

// ListFilter narrows a license request listing.
type ListFilter struct {
	TenantID *uuid.UUID
	Status   *enums.LicenseRequestStatus
}

// ReviewUpdate carries the fields written when a request leaves pending.
type ReviewUpdate struct {
	Status          enums.LicenseRequestStatus
	ReviewedBy      uuid.UUID
	ReviewedAt      time.Time
	RejectionReason string
}

// Repository manages persistence for license requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.LicenseRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.LicenseRequest, error)
	List(ctx context.Context, filter ListFilter, limit int, cursor *pagination.Cursor) ([]models.LicenseRequest, error)
	ResolveIfPending(ctx context.Context, id uuid.UUID, update ReviewUpdate) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a license request repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.LicenseRequest) error {
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.LicenseRequest, error) {
	var row models.LicenseRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter, limit int, cursor *pagination.Cursor) ([]models.LicenseRequest, error) {
	query := r.db.WithContext(ctx).Model(&models.LicenseRequest{})
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.LicenseRequest
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

// ResolveIfPending flips the status in one guarded statement. A false return
// means the row was not pending anymore; callers treat that as an
// already-reviewed conflict.
func (r *repository) ResolveIfPending(ctx context.Context, id uuid.UUID, update ReviewUpdate) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.LicenseRequest{}).
		Where("id = ? AND status = ?", id, enums.LicenseRequestStatusPending).
		Updates(map[string]any{
			"status":           update.Status,
			"reviewed_by":      update.ReviewedBy,
			"reviewed_at":      update.ReviewedAt,
			"rejection_reason": update.RejectionReason,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
