package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/refurbhq/testbench-backend/pkg/db/models"
	pkgerrors "github.com/refurbhq/testbench-backend/pkg/errors"
)

// Service exposes the admin catalog of license types. Catalog rows referenced
// by ledger entries are never removed; deactivation hides them from new
// purchases and authorizations only.
type Service interface {
	CreateLicenseType(ctx context.Context, input CreateLicenseTypeInput) (*models.LicenseType, error)
	UpdateLicenseType(ctx context.Context, id uuid.UUID, input UpdateLicenseTypeInput) (*models.LicenseType, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.LicenseType, error)
	GetLicenseType(ctx context.Context, id uuid.UUID) (*models.LicenseType, error)
	ListLicenseTypes(ctx context.Context, params ListParams) ([]models.LicenseType, error)
	ResolveLicenseType(ctx context.Context, ref TypeRef) (*models.LicenseType, error)
}

// CreateLicenseTypeInput holds the fields required to add a catalog entry.
type CreateLicenseTypeInput struct {
	Name            string
	ProductCategory string
	TestType        string
	UnitPrice       decimal.Decimal
	Description     string
}

// UpdateLicenseTypeInput carries mutable catalog fields. Nil pointers leave
// the stored value untouched.
type UpdateLicenseTypeInput struct {
	Name        *string
	UnitPrice   *decimal.Decimal
	Description *string
}

// TypeRef addresses a license type either directly by ID or by its
// (product category, test type) pair. Direct ID lookups return inactive rows
// too; pair lookups only match active rows.
type TypeRef struct {
	ID              *uuid.UUID
	ProductCategory string
	TestType        string
}

type service struct {
	repo Repository
}

// NewService wires a catalog service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) CreateLicenseType(ctx context.Context, input CreateLicenseTypeInput) (*models.LicenseType, error) {
	name := strings.TrimSpace(input.Name)
	category := strings.TrimSpace(input.ProductCategory)
	testType := strings.TrimSpace(input.TestType)

	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "license type name is required")
	}
	if category == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product category is required")
	}
	if testType == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "test type is required")
	}
	if input.UnitPrice.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative")
	}

	existing, err := s.repo.FindActiveByCategoryTest(ctx, category, testType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking catalog duplicates")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "an active license type for this category and test already exists")
	}

	row := &models.LicenseType{
		Name:            name,
		ProductCategory: category,
		TestType:        testType,
		UnitPrice:       input.UnitPrice,
		Description:     strings.TrimSpace(input.Description),
		Active:          true,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating license type")
	}
	return row, nil
}

func (s *service) UpdateLicenseType(ctx context.Context, id uuid.UUID, input UpdateLicenseTypeInput) (*models.LicenseType, error) {
	row, err := s.mustFind(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "license type name must not be empty")
		}
		row.Name = name
	}
	if input.UnitPrice != nil {
		if input.UnitPrice.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative")
		}
		row.UnitPrice = *input.UnitPrice
	}
	if input.Description != nil {
		row.Description = strings.TrimSpace(*input.Description)
	}

	if err := s.repo.Update(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating license type")
	}
	return row, nil
}

func (s *service) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.LicenseType, error) {
	row, err := s.mustFind(ctx, id)
	if err != nil {
		return nil, err
	}
	if row.Active == active {
		return row, nil
	}
	if active {
		// Reactivation must not reintroduce a duplicate active pair.
		existing, err := s.repo.FindActiveByCategoryTest(ctx, row.ProductCategory, row.TestType)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking catalog duplicates")
		}
		if existing != nil && existing.ID != row.ID {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "an active license type for this category and test already exists")
		}
	}
	row.Active = active
	if err := s.repo.Update(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "toggling license type")
	}
	return row, nil
}

func (s *service) GetLicenseType(ctx context.Context, id uuid.UUID) (*models.LicenseType, error) {
	return s.mustFind(ctx, id)
}

func (s *service) ListLicenseTypes(ctx context.Context, params ListParams) ([]models.LicenseType, error) {
	rows, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing license types")
	}
	return rows, nil
}

// ResolveLicenseType returns the referenced license type, or nil when nothing
// matches. Absence is a result here, not an error: the authorization engine
// turns it into an invalid_license_type decision.
func (s *service) ResolveLicenseType(ctx context.Context, ref TypeRef) (*models.LicenseType, error) {
	if ref.ID != nil && *ref.ID != uuid.Nil {
		row, err := s.repo.FindByID(ctx, *ref.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolving license type")
		}
		return row, nil
	}

	category := strings.TrimSpace(ref.ProductCategory)
	testType := strings.TrimSpace(ref.TestType)
	if category == "" || testType == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "license type id or category and test type required")
	}
	row, err := s.repo.FindActiveByCategoryTest(ctx, category, testType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolving license type")
	}
	return row, nil
}

func (s *service) mustFind(ctx context.Context, id uuid.UUID) (*models.LicenseType, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "license type id is required")
	}
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading license type")
	}
	if row == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "license type not found")
	}
	return row, nil
}
