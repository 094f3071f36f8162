package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/refurbhq/testbench-backend/api/responses"
	"github.com/refurbhq/testbench-backend/internal/tenants"
	"github.com/refurbhq/testbench-backend/pkg/enums"
	pkgerrors "github.com/refurbhq/testbench-backend/pkg/errors"
	"github.com/refurbhq/testbench-backend/pkg/logger"
)

// AdminTenantList returns every tenant account for back-office screens.
func AdminTenantList(repo tenants.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tenants repository unavailable"))
			return
		}

		rows, err := repo.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading tenants"))
			return
		}

		out := make([]tenantResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, tenantResponse{
				ID:           row.ID,
				Name:         row.Name,
				AccountType:  row.AccountType,
				ContactEmail: row.ContactEmail,
				Active:       row.Active,
				CreatedAt:    row.CreatedAt,
			})
		}
		responses.WriteSuccess(w, map[string]any{"tenants": out})
	}
}

type tenantResponse struct {
	ID           uuid.UUID         `json:"id"`
	Name         string            `json:"name"`
	AccountType  enums.AccountType `json:"account_type"`
	ContactEmail string            `json:"contact_email,omitempty"`
	Active       bool              `json:"active"`
	CreatedAt    time.Time         `json:"created_at"`
}
