package enums

import "fmt"

// OutboxEventType identifies the domain events emitted by the licensing core.
type OutboxEventType string

const (
	OutboxEventTypeLicenseConsumed         OutboxEventType = "license.consumed"
	OutboxEventTypeLicenseRequestApproved  OutboxEventType = "license_request.approved"
	OutboxEventTypeLicenseRequestRejected  OutboxEventType = "license_request.rejected"
	OutboxEventTypeLicenseGranted          OutboxEventType = "license.granted"
	OutboxEventTypeLedgerAdjustmentApplied OutboxEventType = "ledger.adjustment_applied"
)

var validOutboxEventTypes = []OutboxEventType{
	OutboxEventTypeLicenseConsumed,
	OutboxEventTypeLicenseRequestApproved,
	OutboxEventTypeLicenseRequestRejected,
	OutboxEventTypeLicenseGranted,
	OutboxEventTypeLedgerAdjustmentApplied,
}

// IsValid reports whether the value matches a known outbox event type.
func (t OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	OutboxAggregateTypeLedgerEntry    OutboxAggregateType = "ledger_entry"
	OutboxAggregateTypeLicenseRequest OutboxAggregateType = "license_request"
	OutboxAggregateTypeDeviceLicense  OutboxAggregateType = "device_license"
)

// IsValid reports whether the aggregate type is known.
func (t OutboxAggregateType) IsValid() bool {
	switch t {
	case OutboxAggregateTypeLedgerEntry, OutboxAggregateTypeLicenseRequest, OutboxAggregateTypeDeviceLicense:
		return true
	}
	return false
}
