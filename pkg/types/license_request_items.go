package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// LicenseRequestItem is one line of a license request: a license type, the
// quantity asked for, and the requester's justification.
type LicenseRequestItem struct {
	LicenseTypeID uuid.UUID `json:"license_type_id"`
	Quantity      int       `json:"quantity"`
	Justification string    `json:"justification,omitempty"`
}

// LicenseRequestItems persists as a JSONB array. The Scan path re-validates
// shape so a malformed blob surfaces at read time instead of during approval.
type LicenseRequestItems []LicenseRequestItem

// Validate checks structural invariants common to storage and API boundaries.
func (items LicenseRequestItems) Validate() error {
	if len(items) == 0 {
		return fmt.Errorf("at least one item is required")
	}
	for i, item := range items {
		if item.LicenseTypeID == uuid.Nil {
			return fmt.Errorf("item %d: license_type_id is required", i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("item %d: quantity must be positive", i)
		}
	}
	return nil
}

// Value implements driver.Valuer.
func (items LicenseRequestItems) Value() (driver.Value, error) {
	if err := items.Validate(); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal license request items: %w", err)
	}
	return string(encoded), nil
}

// Scan implements sql.Scanner.
func (items *LicenseRequestItems) Scan(value any) error {
	if value == nil {
		return fmt.Errorf("license request items cannot be null")
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported license request items type %T", value)
	}

	var decoded LicenseRequestItems
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("unmarshal license request items: %w", err)
	}
	if err := decoded.Validate(); err != nil {
		return fmt.Errorf("stored license request items invalid: %w", err)
	}
	*items = decoded
	return nil
}
