package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/refurbhq/testbench-backend/api/responses"
	"github.com/refurbhq/testbench-backend/internal/retest"
	pkgerrors "github.com/refurbhq/testbench-backend/pkg/errors"
	"github.com/refurbhq/testbench-backend/pkg/logger"
)

// DeviceLicenseHistory lists a device's activation windows for the caller's
// tenant, newest window first.
func DeviceLicenseHistory(repo retest.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "retest repository unavailable"))
			return
		}

		tenantID, _, err := tenantActorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		device := strings.TrimSpace(chi.URLParam(r, "deviceIdentifier"))
		if device == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "device identifier is required"))
			return
		}

		rows, err := repo.ListByDevice(r.Context(), device, tenantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading device licenses"))
			return
		}

		out := make([]deviceLicenseResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, deviceLicenseResponse{
				ID:               row.ID,
				DeviceIdentifier: row.DeviceIdentifier,
				LicenseTypeID:    row.LicenseTypeID,
				ActivatedAt:      row.ActivatedAt,
				RetestValidUntil: row.RetestValidUntil,
				LedgerEntryID:    row.LedgerEntryID,
			})
		}
		responses.WriteSuccess(w, map[string]any{"device_licenses": out})
	}
}

type deviceLicenseResponse struct {
	ID               uuid.UUID  `json:"id"`
	DeviceIdentifier string     `json:"device_identifier"`
	LicenseTypeID    uuid.UUID  `json:"license_type_id"`
	ActivatedAt      time.Time  `json:"activated_at"`
	RetestValidUntil time.Time  `json:"retest_valid_until"`
	LedgerEntryID    *uuid.UUID `json:"ledger_entry_id,omitempty"`
}
