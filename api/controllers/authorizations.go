package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/refurbhq/testbench-backend/api/middleware"
	"github.com/refurbhq/testbench-backend/api/responses"
	"github.com/refurbhq/testbench-backend/api/validators"
	"github.com/refurbhq/testbench-backend/internal/authorize"
	"github.com/refurbhq/testbench-backend/pkg/enums"
	pkgerrors "github.com/refurbhq/testbench-backend/pkg/errors"
	"github.com/refurbhq/testbench-backend/pkg/logger"
)

type authorizeTestRequest struct {
	DeviceIdentifier string `json:"device_identifier" validate:"required"`
	LicenseTypeID    string `json:"license_type_id,omitempty"`
	ProductCategory  string `json:"product_category,omitempty"`
	TestType         string `json:"test_type,omitempty"`
}

func (r authorizeTestRequest) toInput() (authorize.Input, error) {
	input := authorize.Input{
		DeviceIdentifier: strings.TrimSpace(r.DeviceIdentifier),
		ProductCategory:  strings.TrimSpace(r.ProductCategory),
		TestType:         strings.TrimSpace(r.TestType),
	}
	if raw := strings.TrimSpace(r.LicenseTypeID); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return authorize.Input{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid license_type_id")
		}
		input.LicenseTypeID = &id
	}
	return input, nil
}

// AuthorizeTest decides whether a device test may run and charges for it.
// Denials come back authorized=false with an HTTP 200; errors are reserved
// for bad input and infrastructure trouble.
func AuthorizeTest(svc authorize.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "authorization service unavailable"))
			return
		}

		tenantID, userID, err := tenantActorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload authorizeTestRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.AuthorizeTest(r.Context(), tenantID, input, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, authorizationResponseFromResult(result))
	}
}

type authorizationResponse struct {
	Authorized       bool                      `json:"authorized"`
	Reason           enums.AuthorizationReason `json:"reason"`
	LicenseType      *licenseTypeResponse      `json:"license_type,omitempty"`
	ActivatedAt      *time.Time                `json:"activated_at,omitempty"`
	RetestValidUntil *time.Time                `json:"retest_valid_until,omitempty"`
	LedgerEntryID    *uuid.UUID                `json:"ledger_entry_id,omitempty"`
	BalanceRemaining *int64                    `json:"balance_remaining,omitempty"`
}

func authorizationResponseFromResult(result *authorize.Result) authorizationResponse {
	resp := authorizationResponse{
		Authorized:       result.Authorized,
		Reason:           result.Reason,
		LedgerEntryID:    result.LedgerEntryID,
		BalanceRemaining: result.BalanceRemaining,
	}
	if result.LicenseType != nil {
		lt := licenseTypeResponseFromModel(result.LicenseType)
		resp.LicenseType = &lt
	}
	if result.DeviceLicense != nil {
		resp.ActivatedAt = &result.DeviceLicense.ActivatedAt
		resp.RetestValidUntil = &result.DeviceLicense.RetestValidUntil
	}
	return resp
}

// tenantActorFromContext resolves the tenant and user claims every
// tenant-scoped write handler needs.
func tenantActorFromContext(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	tenantRaw := middleware.TenantIDFromContext(r.Context())
	if tenantRaw == "" {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "tenant context missing")
	}
	userRaw := middleware.UserIDFromContext(r.Context())
	if userRaw == "" {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}

	tenantID, err := uuid.Parse(tenantRaw)
	if err != nil {
		return uuid.Nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tenant id")
	}
	userID, err := uuid.Parse(userRaw)
	if err != nil {
		return uuid.Nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return tenantID, userID, nil
}

func adminActorFromContext(r *http.Request) (uuid.UUID, error) {
	userRaw := middleware.UserIDFromContext(r.Context())
	if userRaw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(userRaw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	return userID, nil
}
