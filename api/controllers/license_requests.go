package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/refurbhq/testbench-backend/api/responses"
	"github.com/refurbhq/testbench-backend/api/validators"
	"github.com/refurbhq/testbench-backend/internal/requests"
	"github.com/refurbhq/testbench-backend/pkg/db/models"
	"github.com/refurbhq/testbench-backend/pkg/enums"
	pkgerrors "github.com/refurbhq/testbench-backend/pkg/errors"
	"github.com/refurbhq/testbench-backend/pkg/logger"
	"github.com/refurbhq/testbench-backend/pkg/pagination"
	"github.com/refurbhq/testbench-backend/pkg/types"
)

type licenseRequestItemPayload struct {
	LicenseTypeID string `json:"license_type_id" validate:"required"`
	Quantity      int    `json:"quantity" validate:"required,gt=0"`
	Justification string `json:"justification,omitempty"`
}

type licenseRequestCreatePayload struct {
	Items []licenseRequestItemPayload `json:"items" validate:"required,min=1,dive"`
	Notes string                      `json:"notes,omitempty"`
}

// LicenseRequestCreate files a pending request for additional balance. It
// never touches the ledger.
func LicenseRequestCreate(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "requests service unavailable"))
			return
		}

		tenantID, userID, err := tenantActorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload licenseRequestCreatePayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make(types.LicenseRequestItems, 0, len(payload.Items))
		for _, item := range payload.Items {
			typeID, err := uuid.Parse(strings.TrimSpace(item.LicenseTypeID))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid license_type_id"))
				return
			}
			items = append(items, types.LicenseRequestItem{
				LicenseTypeID: typeID,
				Quantity:      item.Quantity,
				Justification: strings.TrimSpace(item.Justification),
			})
		}

		created, err := svc.Create(r.Context(), tenantID, userID, requests.CreateInput{
			Items: items,
			Notes: payload.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, licenseRequestResponseFromModel(created))
	}
}

// LicenseRequestList returns the caller's own requests, newest first.
func LicenseRequestList(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "requests service unavailable"))
			return
		}

		tenantID, _, err := tenantActorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := requestListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.Filter.TenantID = &tenantID

		writeRequestList(w, r, svc, logg, params)
	}
}

// AdminLicenseRequestList returns requests across tenants, optionally
// filtered by tenant and status.
func AdminLicenseRequestList(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "requests service unavailable"))
			return
		}

		params, err := requestListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		tenantID, err := validators.ParseQueryUUID(r, "tenant_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.Filter.TenantID = tenantID

		writeRequestList(w, r, svc, logg, params)
	}
}

type licenseRequestReviewPayload struct {
	Approve         *bool  `json:"approve" validate:"required"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

// AdminLicenseRequestReview resolves a pending request exactly once.
func AdminLicenseRequestReview(svc requests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "requests service unavailable"))
			return
		}

		reviewerID, err := adminActorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		requestID, err := pathUUID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload licenseRequestReviewPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reviewed, err := svc.Review(r.Context(), requestID, requests.ReviewDecision{
			Approve:         *payload.Approve,
			RejectionReason: payload.RejectionReason,
		}, reviewerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, licenseRequestResponseFromModel(reviewed))
	}
}

func requestListParams(r *http.Request) (requests.ListParams, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return requests.ListParams{}, err
	}

	params := requests.ListParams{
		Page: pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		},
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseLicenseRequestStatus(raw)
		if err != nil {
			return requests.ListParams{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
		}
		params.Filter.Status = &status
	}
	return params, nil
}

func writeRequestList(w http.ResponseWriter, r *http.Request, svc requests.Service, logg *logger.Logger, params requests.ListParams) {
	result, err := svc.List(r.Context(), params)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}

	out := make([]licenseRequestResponse, 0, len(result.Requests))
	for i := range result.Requests {
		out = append(out, licenseRequestResponseFromModel(&result.Requests[i]))
	}
	responses.WriteSuccess(w, map[string]any{
		"requests":    out,
		"next_cursor": result.NextCursor,
	})
}

type licenseRequestResponse struct {
	ID              uuid.UUID                  `json:"id"`
	TenantID        uuid.UUID                  `json:"tenant_id"`
	RequestedBy     uuid.UUID                  `json:"requested_by"`
	Status          enums.LicenseRequestStatus `json:"status"`
	Items           types.LicenseRequestItems  `json:"items"`
	Notes           string                     `json:"notes,omitempty"`
	ReviewedBy      *uuid.UUID                 `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time                 `json:"reviewed_at,omitempty"`
	RejectionReason string                     `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time                  `json:"created_at"`
	UpdatedAt       time.Time                  `json:"updated_at"`
}

func licenseRequestResponseFromModel(m *models.LicenseRequest) licenseRequestResponse {
	return licenseRequestResponse{
		ID:              m.ID,
		TenantID:        m.TenantID,
		RequestedBy:     m.RequestedBy,
		Status:          m.Status,
		Items:           m.Items,
		Notes:           m.Notes,
		ReviewedBy:      m.ReviewedBy,
		ReviewedAt:      m.ReviewedAt,
		RejectionReason: m.RejectionReason,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}
