package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/refurbhq/testbench-backend/api/responses"
	"github.com/refurbhq/testbench-backend/api/validators"
	"github.com/refurbhq/testbench-backend/internal/reports"
	pkgerrors "github.com/refurbhq/testbench-backend/pkg/errors"
	"github.com/refurbhq/testbench-backend/pkg/logger"
)

// AdminUsageReport aggregates chargeable usage over a closed period. With
// format=csv the rows stream out as an attachment instead of JSON.
func AdminUsageReport(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reports service unavailable"))
			return
		}

		start, err := validators.ParseQueryTime(r, "start")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		end, err := validators.ParseQueryTime(r, "end")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tenantID, err := validators.ParseQueryUUID(r, "tenant_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.UsageReport(r.Context(), start, end, tenantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Disposition", `attachment; filename="usage-report.csv"`)
			if err := reports.WriteUsageReportCSV(w, rows); err != nil {
				if logg != nil {
					logg.Error(r.Context(), "write usage report csv", err)
				}
			}
			return
		}

		out := make([]usageRowResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, usageRowResponseFromRow(row))
		}
		responses.WriteSuccess(w, map[string]any{
			"period_start": start.Format(time.RFC3339),
			"period_end":   end.Format(time.RFC3339),
			"rows":         out,
		})
	}
}

type usageRowResponse struct {
	TenantID        uuid.UUID `json:"tenant_id"`
	TenantName      string    `json:"tenant_name"`
	LicenseTypeName string    `json:"license_type"`
	ProductCategory string    `json:"product_category"`
	TestType        string    `json:"test_type"`
	QuantityUsed    int64     `json:"quantity_used"`
	UnitPrice       string    `json:"unit_price"`
	TotalPrice      string    `json:"total_price"`
}

func usageRowResponseFromRow(row reports.UsageRow) usageRowResponse {
	return usageRowResponse{
		TenantID:        row.TenantID,
		TenantName:      row.TenantName,
		LicenseTypeName: row.LicenseTypeName,
		ProductCategory: row.ProductCategory,
		TestType:        row.TestType,
		QuantityUsed:    row.QuantityUsed,
		UnitPrice:       row.UnitPrice.StringFixed(2),
		TotalPrice:      row.TotalPrice.StringFixed(2),
	}
}
