package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/refurbhq/testbench-backend/pkg/db"
	"github.com/refurbhq/testbench-backend/pkg/db/models"
	"github.com/refurbhq/testbench-backend/pkg/enums"
	pkgerrors "github.com/refurbhq/testbench-backend/pkg/errors"
	"github.com/refurbhq/testbench-backend/pkg/metrics"
	"github.com/refurbhq/testbench-backend/pkg/outbox"
	"github.com/refurbhq/testbench-backend/pkg/pagination"
)

// Service exposes ledger reads plus the two admin write paths: manual
// adjustments and quick grants. Usage debits happen in the authorization
// engine; purchase credits from approved requests happen in the request
// workflow. All writes append; nothing updates or deletes ledger rows.
type Service interface {
	Balances(ctx context.Context, tenantID uuid.UUID, search string) ([]BalanceRow, error)
	History(ctx context.Context, tenantID uuid.UUID, params HistoryParams) (*HistoryResult, error)
	ManualAdjustment(ctx context.Context, input ManualAdjustmentInput) (*models.LicenseLedgerEntry, error)
	QuickGrant(ctx context.Context, input QuickGrantInput) ([]models.LicenseLedgerEntry, error)
}

// HistoryParams captures ledger history listing inputs.
type HistoryParams struct {
	Filter HistoryFilter
	Page   pagination.Params
}

// HistoryResult is one page of ledger history plus the cursor for the next.
type HistoryResult struct {
	Entries    []models.LicenseLedgerEntry
	NextCursor string
}

// ManualAdjustmentInput captures an admin correction. Amount is signed; notes
// are mandatory because adjustments are the only write without a system
// reference.
type ManualAdjustmentInput struct {
	TenantID      uuid.UUID
	LicenseTypeID uuid.UUID
	Amount        int
	Notes         string
	AdminID       uuid.UUID
}

// GrantItem is one license type + quantity pair inside a quick grant.
type GrantItem struct {
	LicenseTypeID uuid.UUID
	Quantity      int
}

// QuickGrantInput captures an admin grant issued outside the request
// workflow. All items land in one transaction or none do.
type QuickGrantInput struct {
	TenantID uuid.UUID
	Items    []GrantItem
	Notes    string
	AdminID  uuid.UUID
}

const (
	referenceTypeManualAdjustment = "manual_adjustment"
	referenceTypeQuickGrant       = "quick_grant"
)

type catalogRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.LicenseType, error)
}

type service struct {
	client  *db.Client
	repo    Repository
	catalog catalogRepository
	events  *outbox.Service
	metrics *metrics.LicensingMetrics
}

// NewService wires a ledger service with its repository and event sink.
func NewService(client *db.Client, repo Repository, catalog catalogRepository, events *outbox.Service, m *metrics.LicensingMetrics) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &service{client: client, repo: repo, catalog: catalog, events: events, metrics: m}, nil
}

func (s *service) Balances(ctx context.Context, tenantID uuid.UUID, search string) ([]BalanceRow, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	rows, err := s.repo.TenantBalances(ctx, tenantID, search)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading balances")
	}
	return rows, nil
}

func (s *service) History(ctx context.Context, tenantID uuid.UUID, params HistoryParams) (*HistoryResult, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	if params.Filter.TransactionType != nil && !params.Filter.TransactionType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type filter")
	}

	cursor, err := pagination.ParseCursor(params.Page.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Page.Limit)
	rows, err := s.repo.History(ctx, tenantID, params.Filter, limit+1, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading ledger history")
	}

	result := &HistoryResult{Entries: rows}
	if len(rows) > limit {
		result.Entries = rows[:limit]
		last := result.Entries[limit-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return result, nil
}

func (s *service) ManualAdjustment(ctx context.Context, input ManualAdjustmentInput) (*models.LicenseLedgerEntry, error) {
	if input.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	if input.LicenseTypeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "license type id is required")
	}
	if input.Amount == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment amount must not be zero")
	}
	if strings.TrimSpace(input.Notes) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment notes are required")
	}
	if input.AdminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "admin identity missing")
	}

	entry := &models.LicenseLedgerEntry{
		TenantID:        input.TenantID,
		LicenseTypeID:   input.LicenseTypeID,
		Amount:          input.Amount,
		TransactionType: enums.TransactionTypeAdjustment,
		ReferenceType:   referenceTypeManualAdjustment,
		Notes:           strings.TrimSpace(input.Notes),
		CreatedBy:       &input.AdminID,
	}

	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Append(ctx, entry); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventTypeLedgerAdjustmentApplied,
			AggregateType: enums.OutboxAggregateTypeLedgerEntry,
			AggregateID:   entry.ID,
			Actor:         &outbox.ActorRef{UserID: input.AdminID, Role: string(enums.ActorRoleAdmin)},
			Data: map[string]any{
				"tenant_id":       input.TenantID,
				"license_type_id": input.LicenseTypeID,
				"amount":          input.Amount,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording adjustment")
	}

	s.metrics.IncLedgerWrite(string(enums.TransactionTypeAdjustment))
	return entry, nil
}

func (s *service) QuickGrant(ctx context.Context, input QuickGrantInput) ([]models.LicenseLedgerEntry, error) {
	if input.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one grant item is required")
	}
	if input.AdminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "admin identity missing")
	}

	// Validate every referenced license type before any write.
	for _, item := range input.Items {
		if item.LicenseTypeID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "license type id is required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "grant quantity must be positive")
		}
		row, err := s.catalog.FindByID(ctx, item.LicenseTypeID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading license type")
		}
		if row == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown license type in grant").
				WithDetails(map[string]any{"license_type_id": item.LicenseTypeID})
		}
	}

	notes := strings.TrimSpace(input.Notes)
	entries := make([]models.LicenseLedgerEntry, 0, len(input.Items))

	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, item := range input.Items {
			entry := models.LicenseLedgerEntry{
				TenantID:        input.TenantID,
				LicenseTypeID:   item.LicenseTypeID,
				Amount:          item.Quantity,
				TransactionType: enums.TransactionTypePurchase,
				ReferenceType:   referenceTypeQuickGrant,
				Notes:           notes,
				CreatedBy:       &input.AdminID,
			}
			if err := repo.Append(ctx, &entry); err != nil {
				return err
			}
			if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.OutboxEventTypeLicenseGranted,
				AggregateType: enums.OutboxAggregateTypeLedgerEntry,
				AggregateID:   entry.ID,
				Actor:         &outbox.ActorRef{UserID: input.AdminID, Role: string(enums.ActorRoleAdmin)},
				Data: map[string]any{
					"tenant_id":       input.TenantID,
					"license_type_id": item.LicenseTypeID,
					"quantity":        item.Quantity,
				},
				Version: 1,
			}); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording grant")
	}

	for range entries {
		s.metrics.IncLedgerWrite(string(enums.TransactionTypePurchase))
	}
	return entries, nil
}
