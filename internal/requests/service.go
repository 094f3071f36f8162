package requests

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/refurbhq/testbench-backend/internal/ledger"
	"github.com/refurbhq/testbench-backend/pkg/db"
	"github.com/refurbhq/testbench-backend/pkg/db/models"
	"github.com/refurbhq/testbench-backend/pkg/enums"
	pkgerrors "github.com/refurbhq/testbench-backend/pkg/errors"
	"github.com/refurbhq/testbench-backend/pkg/metrics"
	"github.com/refurbhq/testbench-backend/pkg/outbox"
	"github.com/refurbhq/testbench-backend/pkg/pagination"
	"github.com/refurbhq/testbench-backend/pkg/types"
)

// Service runs the license request workflow: tenants file requests, admins
// review them. A request leaves pending exactly once; approval is the only
// path from this package into the ledger.
type Service interface {
	Create(ctx context.Context, tenantID, requestedBy uuid.UUID, input CreateInput) (*models.LicenseRequest, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Review(ctx context.Context, id uuid.UUID, decision ReviewDecision, reviewerID uuid.UUID) (*models.LicenseRequest, error)
}

// CreateInput captures a new license request.
type CreateInput struct {
	Items types.LicenseRequestItems
	Notes string
}

// ListParams captures request listing inputs.
type ListParams struct {
	Filter ListFilter
	Page   pagination.Params
}

// ListResult is one page of requests plus the cursor for the next.
type ListResult struct {
	Requests   []models.LicenseRequest
	NextCursor string
}

// ReviewDecision captures an admin's verdict on a pending request.
type ReviewDecision struct {
	Approve         bool
	RejectionReason string
}

const referenceTypeLicenseRequest = "license_request"

type catalogRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.LicenseType, error)
}

type service struct {
	client  *db.Client
	repo    Repository
	catalog catalogRepository
	ledger  ledger.Repository
	events  *outbox.Service
	metrics *metrics.LicensingMetrics
}

// NewService wires the request workflow with its collaborators.
func NewService(client *db.Client, repo Repository, catalogRepo catalogRepository, ledgerRepo ledger.Repository, events *outbox.Service, m *metrics.LicensingMetrics) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if repo == nil {
		return nil, fmt.Errorf("request repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &service{
		client:  client,
		repo:    repo,
		catalog: catalogRepo,
		ledger:  ledgerRepo,
		events:  events,
		metrics: m,
	}, nil
}

func (s *service) Create(ctx context.Context, tenantID, requestedBy uuid.UUID, input CreateInput) (*models.LicenseRequest, error) {
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	if requestedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requester identity missing")
	}
	if err := input.Items.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request items")
	}

	// Every referenced license type must exist; one bad item rejects the
	// whole request.
	for _, item := range input.Items {
		row, err := s.catalog.FindByID(ctx, item.LicenseTypeID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading license type")
		}
		if row == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown license type in request").
				WithDetails(map[string]any{"license_type_id": item.LicenseTypeID})
		}
	}

	request := &models.LicenseRequest{
		TenantID:    tenantID,
		RequestedBy: requestedBy,
		Status:      enums.LicenseRequestStatusPending,
		Items:       input.Items,
		Notes:       strings.TrimSpace(input.Notes),
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating license request")
	}
	return request, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Filter.Status != nil && !params.Filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}

	cursor, err := pagination.ParseCursor(params.Page.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Page.Limit)
	rows, err := s.repo.List(ctx, params.Filter, limit+1, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing license requests")
	}

	result := &ListResult{Requests: rows}
	if len(rows) > limit {
		result.Requests = rows[:limit]
		last := result.Requests[limit-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return result, nil
}

func (s *service) Review(ctx context.Context, id uuid.UUID, decision ReviewDecision, reviewerID uuid.UUID) (*models.LicenseRequest, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id is required")
	}
	if reviewerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reviewer identity missing")
	}
	reason := strings.TrimSpace(decision.RejectionReason)
	if !decision.Approve && reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason is required")
	}

	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading license request")
	}
	if request == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "license request not found")
	}
	if request.Status != enums.LicenseRequestStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "license request already reviewed")
	}

	status := enums.LicenseRequestStatusApproved
	eventType := enums.OutboxEventTypeLicenseRequestApproved
	if !decision.Approve {
		status = enums.LicenseRequestStatusRejected
		eventType = enums.OutboxEventTypeLicenseRequestRejected
	}
	reviewedAt := time.Now().UTC()

	txErr := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		// The guarded update is what makes review exactly-once under
		// concurrency; the pre-check above only provides a friendlier
		// error for the common sequential case.
		flipped, err := s.repo.WithTx(tx).ResolveIfPending(ctx, id, ReviewUpdate{
			Status:          status,
			ReviewedBy:      reviewerID,
			ReviewedAt:      reviewedAt,
			RejectionReason: reason,
		})
		if err != nil {
			return err
		}
		if !flipped {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "license request already reviewed")
		}

		if decision.Approve {
			ledgerRepo := s.ledger.WithTx(tx)
			for _, item := range request.Items {
				entry := models.LicenseLedgerEntry{
					TenantID:        request.TenantID,
					LicenseTypeID:   item.LicenseTypeID,
					Amount:          item.Quantity,
					TransactionType: enums.TransactionTypePurchase,
					ReferenceType:   referenceTypeLicenseRequest,
					ReferenceID:     &request.ID,
					CreatedBy:       &reviewerID,
				}
				if err := ledgerRepo.Append(ctx, &entry); err != nil {
					return err
				}
			}
		}

		return s.events.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.OutboxAggregateTypeLicenseRequest,
			AggregateID:   request.ID,
			Actor:         &outbox.ActorRef{UserID: reviewerID, Role: string(enums.ActorRoleAdmin)},
			Data: map[string]any{
				"tenant_id": request.TenantID,
				"status":    status,
			},
			Version: 1,
		})
	})
	if txErr != nil {
		if typed := pkgerrors.As(txErr); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, txErr, "reviewing license request")
	}

	if decision.Approve {
		for range request.Items {
			s.metrics.IncLedgerWrite(string(enums.TransactionTypePurchase))
		}
	}

	request.Status = status
	request.ReviewedBy = &reviewerID
	request.ReviewedAt = &reviewedAt
	request.RejectionReason = reason
	return request, nil
}
