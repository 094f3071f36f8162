package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/refurbhq/testbench-backend/api/responses"
	"github.com/refurbhq/testbench-backend/api/validators"
	"github.com/refurbhq/testbench-backend/internal/catalog"
	"github.com/refurbhq/testbench-backend/pkg/db/models"
	pkgerrors "github.com/refurbhq/testbench-backend/pkg/errors"
	"github.com/refurbhq/testbench-backend/pkg/logger"
)

type licenseTypeCreateRequest struct {
	Name            string `json:"name" validate:"required"`
	ProductCategory string `json:"product_category" validate:"required"`
	TestType        string `json:"test_type" validate:"required"`
	UnitPrice       string `json:"unit_price" validate:"required"`
	Description     string `json:"description,omitempty"`
}

// AdminLicenseTypeCreate adds a catalog entry.
func AdminLicenseTypeCreate(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}

		var payload licenseTypeCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		price, err := decimal.NewFromString(strings.TrimSpace(payload.UnitPrice))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit_price"))
			return
		}

		created, err := svc.CreateLicenseType(r.Context(), catalog.CreateLicenseTypeInput{
			Name:            payload.Name,
			ProductCategory: payload.ProductCategory,
			TestType:        payload.TestType,
			UnitPrice:       price,
			Description:     payload.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, licenseTypeResponseFromModel(created))
	}
}

// AdminLicenseTypeList lists catalog entries; inactive rows only on request.
func AdminLicenseTypeList(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}

		params := catalog.ListParams{
			IncludeInactive: strings.EqualFold(r.URL.Query().Get("include_inactive"), "true"),
			Search:          validators.SanitizeString(r.URL.Query().Get("search"), 120),
		}

		rows, err := svc.ListLicenseTypes(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]licenseTypeResponse, 0, len(rows))
		for i := range rows {
			out = append(out, licenseTypeResponseFromModel(&rows[i]))
		}
		responses.WriteSuccess(w, map[string]any{"license_types": out})
	}
}

type licenseTypeUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	UnitPrice   *string `json:"unit_price,omitempty"`
	Description *string `json:"description,omitempty"`
}

// AdminLicenseTypeUpdate patches mutable catalog fields.
func AdminLicenseTypeUpdate(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}

		id, err := pathUUID(r, "licenseTypeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload licenseTypeUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := catalog.UpdateLicenseTypeInput{
			Name:        payload.Name,
			Description: payload.Description,
		}
		if payload.UnitPrice != nil {
			price, err := decimal.NewFromString(strings.TrimSpace(*payload.UnitPrice))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit_price"))
				return
			}
			input.UnitPrice = &price
		}

		updated, err := svc.UpdateLicenseType(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, licenseTypeResponseFromModel(updated))
	}
}

type licenseTypeActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// AdminLicenseTypeSetActive toggles a catalog entry without deleting it.
func AdminLicenseTypeSetActive(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}

		id, err := pathUUID(r, "licenseTypeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload licenseTypeActiveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.SetActive(r.Context(), id, *payload.Active)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, licenseTypeResponseFromModel(updated))
	}
}

type licenseTypeResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	ProductCategory string    `json:"product_category"`
	TestType        string    `json:"test_type"`
	UnitPrice       string    `json:"unit_price"`
	Description     string    `json:"description,omitempty"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func licenseTypeResponseFromModel(m *models.LicenseType) licenseTypeResponse {
	return licenseTypeResponse{
		ID:              m.ID,
		Name:            m.Name,
		ProductCategory: m.ProductCategory,
		TestType:        m.TestType,
		UnitPrice:       m.UnitPrice.StringFixed(2),
		Description:     m.Description,
		Active:          m.Active,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+param)
	}
	return id, nil
}
