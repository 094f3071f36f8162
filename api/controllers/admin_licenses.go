package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/refurbhq/testbench-backend/api/responses"
	"github.com/refurbhq/testbench-backend/api/validators"
	"github.com/refurbhq/testbench-backend/internal/ledger"
	pkgerrors "github.com/refurbhq/testbench-backend/pkg/errors"
	"github.com/refurbhq/testbench-backend/pkg/logger"
)

type manualAdjustmentRequest struct {
	TenantID      string `json:"tenant_id" validate:"required"`
	LicenseTypeID string `json:"license_type_id" validate:"required"`
	Amount        int    `json:"amount" validate:"required"`
	Notes         string `json:"notes" validate:"required"`
}

// AdminManualAdjustment records a signed correction entry. Notes are
// mandatory; the amount may be negative.
func AdminManualAdjustment(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		adminID, err := adminActorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload manualAdjustmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tenantID, err := uuid.Parse(strings.TrimSpace(payload.TenantID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tenant_id"))
			return
		}
		typeID, err := uuid.Parse(strings.TrimSpace(payload.LicenseTypeID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid license_type_id"))
			return
		}

		entry, err := svc.ManualAdjustment(r.Context(), ledger.ManualAdjustmentInput{
			TenantID:      tenantID,
			LicenseTypeID: typeID,
			Amount:        payload.Amount,
			Notes:         payload.Notes,
			AdminID:       adminID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, ledgerEntryResponseFromModel(*entry))
	}
}

type quickGrantItem struct {
	LicenseTypeID string `json:"license_type_id" validate:"required"`
	Quantity      int    `json:"quantity" validate:"required,gt=0"`
}

type quickGrantRequest struct {
	TenantID string           `json:"tenant_id" validate:"required"`
	Items    []quickGrantItem `json:"items" validate:"required,min=1,dive"`
	Notes    string           `json:"notes,omitempty"`
}

// AdminQuickGrant credits license balance without a request workflow.
func AdminQuickGrant(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		adminID, err := adminActorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload quickGrantRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tenantID, err := uuid.Parse(strings.TrimSpace(payload.TenantID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tenant_id"))
			return
		}

		items := make([]ledger.GrantItem, 0, len(payload.Items))
		for _, item := range payload.Items {
			typeID, err := uuid.Parse(strings.TrimSpace(item.LicenseTypeID))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid license_type_id"))
				return
			}
			items = append(items, ledger.GrantItem{LicenseTypeID: typeID, Quantity: item.Quantity})
		}

		entries, err := svc.QuickGrant(r.Context(), ledger.QuickGrantInput{
			TenantID: tenantID,
			Items:    items,
			Notes:    payload.Notes,
			AdminID:  adminID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]ledgerEntryResponse, 0, len(entries))
		for _, entry := range entries {
			out = append(out, ledgerEntryResponseFromModel(entry))
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{"entries": out})
	}
}
