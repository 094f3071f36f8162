package authorize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/refurbhq/testbench-backend/internal/catalog"
	"github.com/refurbhq/testbench-backend/internal/ledger"
	"github.com/refurbhq/testbench-backend/internal/retest"
	"github.com/refurbhq/testbench-backend/pkg/db"
	"github.com/refurbhq/testbench-backend/pkg/db/models"
	"github.com/refurbhq/testbench-backend/pkg/enums"
	pkgerrors "github.com/refurbhq/testbench-backend/pkg/errors"
	"github.com/refurbhq/testbench-backend/pkg/metrics"
	"github.com/refurbhq/testbench-backend/pkg/outbox"
)

// Input identifies the device and the license type a station wants to test
// against. Either LicenseTypeID or the (ProductCategory, TestType) pair must
// be set.
type Input struct {
	DeviceIdentifier string
	LicenseTypeID    *uuid.UUID
	ProductCategory  string
	TestType         string
}

// Result is the authorization decision. Denials are ordinary results; the
// error return is reserved for validation and infrastructure failures.
type Result struct {
	Authorized       bool
	Reason           enums.AuthorizationReason
	LicenseType      *models.LicenseType
	DeviceLicense    *models.DeviceLicense
	LedgerEntryID    *uuid.UUID
	BalanceRemaining *int64
}

// Service decides whether a device test may proceed and charges for it.
type Service interface {
	AuthorizeTest(ctx context.Context, tenantID uuid.UUID, input Input, actorID uuid.UUID) (*Result, error)
}

type catalogResolver interface {
	ResolveLicenseType(ctx context.Context, ref catalog.TypeRef) (*models.LicenseType, error)
}

type tenantsRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

const referenceTypeTestAuthorization = "test_authorization"

// errInsufficient aborts the consume transaction when the conditional debit
// finds no balance; it never escapes AuthorizeTest.
var errInsufficient = errors.New("insufficient balance")

// preCommitError marks failures raised inside the transaction closure. A
// transaction error NOT carrying this marker failed at commit, where the
// outcome is unknown.
type preCommitError struct {
	err error
}

func (e preCommitError) Error() string { return e.err.Error() }
func (e preCommitError) Unwrap() error { return e.err }

type service struct {
	client       *db.Client
	tenants      tenantsRepository
	catalog      catalogResolver
	ledgerRepo   ledger.Repository
	retestRepo   retest.Repository
	events       *outbox.Service
	metrics      *metrics.LicensingMetrics
	retestWindow time.Duration
	now          func() time.Time
}

// NewService wires the authorization engine.
func NewService(
	client *db.Client,
	tenants tenantsRepository,
	catalogSvc catalogResolver,
	ledgerRepo ledger.Repository,
	retestRepo retest.Repository,
	events *outbox.Service,
	m *metrics.LicensingMetrics,
	retestWindow time.Duration,
) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if tenants == nil {
		return nil, fmt.Errorf("tenants repository required")
	}
	if catalogSvc == nil {
		return nil, fmt.Errorf("catalog service required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if retestRepo == nil {
		return nil, fmt.Errorf("retest repository required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if retestWindow <= 0 {
		return nil, fmt.Errorf("retest window must be positive")
	}
	return &service{
		client:       client,
		tenants:      tenants,
		catalog:      catalogSvc,
		ledgerRepo:   ledgerRepo,
		retestRepo:   retestRepo,
		events:       events,
		metrics:      m,
		retestWindow: retestWindow,
		now:          time.Now,
	}, nil
}

func (s *service) AuthorizeTest(ctx context.Context, tenantID uuid.UUID, input Input, actorID uuid.UUID) (*Result, error) {
	started := s.now()

	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}
	device := strings.TrimSpace(input.DeviceIdentifier)
	if device == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "device identifier is required")
	}

	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading tenant")
	}
	if tenant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tenant not found")
	}
	if !tenant.Active {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "tenant account is suspended")
	}

	defer func() {
		s.metrics.ObserveAuthorizeDuration(string(tenant.AccountType), s.now().Sub(started))
	}()

	licenseType, err := s.catalog.ResolveLicenseType(ctx, catalog.TypeRef{
		ID:              input.LicenseTypeID,
		ProductCategory: input.ProductCategory,
		TestType:        input.TestType,
	})
	if err != nil {
		return nil, err
	}
	if licenseType == nil {
		return s.deny(enums.AuthorizationReasonInvalidLicenseType, nil), nil
	}

	now := s.now().UTC()

	// A device inside its retest window tests free of charge; nothing is
	// written, so retrying a free retest is naturally idempotent.
	window, err := s.retestRepo.LatestWindow(ctx, device, licenseType.ID, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading retest window")
	}
	if window != nil && !window.RetestValidUntil.Before(now) {
		s.metrics.IncAuthorization(string(enums.AuthorizationReasonFreeRetest))
		return &Result{
			Authorized:    true,
			Reason:        enums.AuthorizationReasonFreeRetest,
			LicenseType:   licenseType,
			DeviceLicense: window,
		}, nil
	}

	prepaid := tenant.AccountType == enums.AccountTypePrepaid
	if prepaid {
		balance, err := s.ledgerRepo.Balance(ctx, tenantID, licenseType.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading balance")
		}
		if balance < 1 {
			s.metrics.IncAuthorization(string(enums.AuthorizationReasonInsufficientLicense))
			return s.deny(enums.AuthorizationReasonInsufficientLicense, &balance), nil
		}
	}

	var (
		entry      *models.LicenseLedgerEntry
		activation *models.DeviceLicense
	)

	txErr := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		ledgerRepo := s.ledgerRepo.WithTx(tx)

		if prepaid {
			debited, ok, err := ledgerRepo.ConditionalDebit(ctx, ledger.DebitInput{
				TenantID:         tenantID,
				LicenseTypeID:    licenseType.ID,
				Quantity:         1,
				ReferenceType:    referenceTypeTestAuthorization,
				DeviceIdentifier: device,
				CreatedBy:        &actorID,
			})
			if err != nil {
				return preCommitError{err}
			}
			if !ok {
				// Lost the race to a concurrent debit.
				return errInsufficient
			}
			entry = debited
		} else {
			entry = &models.LicenseLedgerEntry{
				TenantID:         tenantID,
				LicenseTypeID:    licenseType.ID,
				Amount:           -1,
				TransactionType:  enums.TransactionTypeUsage,
				ReferenceType:    referenceTypeTestAuthorization,
				DeviceIdentifier: device,
				CreatedBy:        &actorID,
			}
			if err := ledgerRepo.Append(ctx, entry); err != nil {
				return preCommitError{err}
			}
		}

		activation = &models.DeviceLicense{
			DeviceIdentifier: device,
			LicenseTypeID:    licenseType.ID,
			TenantID:         tenantID,
			ActivatedAt:      now,
			RetestValidUntil: now.Add(s.retestWindow),
			LedgerEntryID:    &entry.ID,
		}
		if err := s.retestRepo.WithTx(tx).Activate(ctx, activation); err != nil {
			return preCommitError{err}
		}

		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventTypeLicenseConsumed,
			AggregateType: enums.OutboxAggregateTypeLedgerEntry,
			AggregateID:   entry.ID,
			Actor:         &outbox.ActorRef{UserID: actorID, TenantID: &tenantID},
			Data: map[string]any{
				"tenant_id":         tenantID,
				"license_type_id":   licenseType.ID,
				"device_identifier": device,
			},
			Version: 1,
		}); err != nil {
			return preCommitError{err}
		}
		return nil
	})

	if txErr != nil {
		if errors.Is(txErr, errInsufficient) {
			var remaining *int64
			if balance, balErr := s.ledgerRepo.Balance(ctx, tenantID, licenseType.ID); balErr == nil {
				remaining = &balance
			}
			s.metrics.IncAuthorization(string(enums.AuthorizationReasonInsufficientLicense))
			return s.deny(enums.AuthorizationReasonInsufficientLicense, remaining), nil
		}
		var pre preCommitError
		if errors.As(txErr, &pre) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, txErr, "authorizing test")
		}
		// The closure succeeded, so this failure happened at commit. The debit
		// may or may not have landed; the caller must re-read before retrying.
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependencyAmbiguous, txErr, "authorization outcome unknown")
	}

	balance, err := s.ledgerRepo.Balance(ctx, tenantID, licenseType.ID)
	var remaining *int64
	if err == nil {
		remaining = &balance
	}

	s.metrics.IncAuthorization(string(enums.AuthorizationReasonLicenseConsumed))
	s.metrics.IncLedgerWrite(string(enums.TransactionTypeUsage))

	return &Result{
		Authorized:       true,
		Reason:           enums.AuthorizationReasonLicenseConsumed,
		LicenseType:      licenseType,
		DeviceLicense:    activation,
		LedgerEntryID:    &entry.ID,
		BalanceRemaining: remaining,
	}, nil
}

func (s *service) deny(reason enums.AuthorizationReason, balance *int64) *Result {
	if reason == enums.AuthorizationReasonInvalidLicenseType {
		s.metrics.IncAuthorization(string(reason))
	}
	return &Result{
		Authorized:       false,
		Reason:           reason,
		BalanceRemaining: balance,
	}
}
