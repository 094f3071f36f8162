package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/refurbhq/testbench-backend/api/responses"
	"github.com/refurbhq/testbench-backend/api/validators"
	"github.com/refurbhq/testbench-backend/internal/ledger"
	"github.com/refurbhq/testbench-backend/pkg/db/models"
	"github.com/refurbhq/testbench-backend/pkg/enums"
	pkgerrors "github.com/refurbhq/testbench-backend/pkg/errors"
	"github.com/refurbhq/testbench-backend/pkg/logger"
	"github.com/refurbhq/testbench-backend/pkg/pagination"
)

// LicenseBalances returns the caller's per-type balances, zero-balance types
// included.
func LicenseBalances(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		tenantID, _, err := tenantActorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		search := validators.SanitizeString(r.URL.Query().Get("search"), 120)
		rows, err := svc.Balances(r.Context(), tenantID, search)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]balanceResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, balanceResponseFromRow(row))
		}
		responses.WriteSuccess(w, map[string]any{"balances": out})
	}
}

// LicenseLedger returns a page of the caller's ledger history, newest first.
func LicenseLedger(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		tenantID, _, err := tenantActorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := ledger.HistoryParams{
			Page: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		}

		typeID, err := validators.ParseQueryUUID(r, "license_type_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.Filter.LicenseTypeID = typeID

		if raw := strings.TrimSpace(r.URL.Query().Get("transaction_type")); raw != "" {
			txType, err := enums.ParseTransactionType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction_type"))
				return
			}
			params.Filter.TransactionType = &txType
		}
		params.Filter.Search = validators.SanitizeString(r.URL.Query().Get("search"), 120)

		result, err := svc.History(r.Context(), tenantID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries := make([]ledgerEntryResponse, 0, len(result.Entries))
		for _, entry := range result.Entries {
			entries = append(entries, ledgerEntryResponseFromModel(entry))
		}
		responses.WriteSuccess(w, map[string]any{
			"entries":     entries,
			"next_cursor": result.NextCursor,
		})
	}
}

type balanceResponse struct {
	LicenseTypeID   uuid.UUID `json:"license_type_id"`
	LicenseTypeName string    `json:"license_type_name"`
	ProductCategory string    `json:"product_category"`
	TestType        string    `json:"test_type"`
	Active          bool      `json:"active"`
	Balance         int64     `json:"balance"`
}

func balanceResponseFromRow(row ledger.BalanceRow) balanceResponse {
	return balanceResponse{
		LicenseTypeID:   row.LicenseTypeID,
		LicenseTypeName: row.LicenseTypeName,
		ProductCategory: row.ProductCategory,
		TestType:        row.TestType,
		Active:          row.Active,
		Balance:         row.Balance,
	}
}

type ledgerEntryResponse struct {
	ID               uuid.UUID             `json:"id"`
	LicenseTypeID    uuid.UUID             `json:"license_type_id"`
	Amount           int                   `json:"amount"`
	TransactionType  enums.TransactionType `json:"transaction_type"`
	ReferenceType    string                `json:"reference_type"`
	ReferenceID      *uuid.UUID            `json:"reference_id,omitempty"`
	DeviceIdentifier string                `json:"device_identifier,omitempty"`
	Notes            string                `json:"notes,omitempty"`
	CreatedBy        *uuid.UUID            `json:"created_by,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
}

func ledgerEntryResponseFromModel(m models.LicenseLedgerEntry) ledgerEntryResponse {
	return ledgerEntryResponse{
		ID:               m.ID,
		LicenseTypeID:    m.LicenseTypeID,
		Amount:           m.Amount,
		TransactionType:  m.TransactionType,
		ReferenceType:    m.ReferenceType,
		ReferenceID:      m.ReferenceID,
		DeviceIdentifier: m.DeviceIdentifier,
		Notes:            m.Notes,
		CreatedBy:        m.CreatedBy,
		CreatedAt:        m.CreatedAt,
	}
}
