package reports

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/refurbhq/testbench-backend/pkg/errors"
)

// Service produces billing-grade usage reports from the ledger.
type Service interface {
	UsageReport(ctx context.Context, start, end time.Time, tenantID *uuid.UUID) ([]UsageRow, error)
}

type service struct {
	repo Repository
}

// NewService wires a reports service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reports repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) UsageReport(ctx context.Context, start, end time.Time, tenantID *uuid.UUID) ([]UsageRow, error) {
	if start.IsZero() || end.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "report period start and end are required")
	}
	if end.Before(start) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "report period end precedes start")
	}

	rows, err := s.repo.Usage(ctx, start, end, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregating usage")
	}

	for i := range rows {
		rows[i].TotalPrice = rows[i].UnitPrice.Mul(decimal.NewFromInt(rows[i].QuantityUsed))
	}
	return rows, nil
}

// usageCSVHeader fixes the column order billing tooling depends on.
var usageCSVHeader = []string{
	"tenant_id",
	"tenant_name",
	"license_type",
	"product_category",
	"test_type",
	"quantity_used",
	"unit_price",
	"total_price",
}

// WriteUsageReportCSV streams the report rows as CSV.
func WriteUsageReportCSV(w io.Writer, rows []UsageRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(usageCSVHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.TenantID.String(),
			row.TenantName,
			row.LicenseTypeName,
			row.ProductCategory,
			row.TestType,
			strconv.FormatInt(row.QuantityUsed, 10),
			row.UnitPrice.StringFixed(2),
			row.TotalPrice.StringFixed(2),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
