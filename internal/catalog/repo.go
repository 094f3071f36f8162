package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/refurbhq/testbench-backend/pkg/db/models"
)

// ListParams narrows a catalog listing.
type ListParams struct {
	IncludeInactive bool
	Search          string
}

// Repository manages persistence for the license type catalog.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, licenseType *models.LicenseType) error
	Update(ctx context.Context, licenseType *models.LicenseType) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.LicenseType, error)
	FindActiveByCategoryTest(ctx context.Context, productCategory, testType string) (*models.LicenseType, error)
	List(ctx context.Context, params ListParams) ([]models.LicenseType, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, licenseType *models.LicenseType) error {
	return r.db.WithContext(ctx).Create(licenseType).Error
}

func (r *repository) Update(ctx context.Context, licenseType *models.LicenseType) error {
	return r.db.WithContext(ctx).Save(licenseType).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.LicenseType, error) {
	var row models.LicenseType
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindActiveByCategoryTest(ctx context.Context, productCategory, testType string) (*models.LicenseType, error) {
	var row models.LicenseType
	err := r.db.WithContext(ctx).
		Where("product_category = ? AND test_type = ? AND active = ?", productCategory, testType, true).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) List(ctx context.Context, params ListParams) ([]models.LicenseType, error) {
	query := r.db.WithContext(ctx).Model(&models.LicenseType{})
	if !params.IncludeInactive {
		query = query.Where("active = ?", true)
	}
	if search := strings.TrimSpace(params.Search); search != "" {
		pattern := "%" + search + "%"
		query = query.Where(
			"name LIKE ? OR product_category LIKE ? OR test_type LIKE ?",
			pattern, pattern, pattern,
		)
	}
	var rows []models.LicenseType
	if err := query.Order("product_category ASC").Order("test_type ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
