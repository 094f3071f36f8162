package enums

import "fmt"

// AccountType maps to the account_type_enum enum in Postgres. Prepaid tenants
// must hold a non-negative balance before consuming; credit tenants always
// consume and are invoiced from usage reports.
type AccountType string

const (
	AccountTypePrepaid AccountType = "prepaid"
	AccountTypeCredit  AccountType = "credit"
)

var validAccountTypes = []AccountType{
	AccountTypePrepaid,
	AccountTypeCredit,
}

// IsValid reports whether the value matches the canonical account type enum.
func (t AccountType) IsValid() bool {
	for _, candidate := range validAccountTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseAccountType converts raw input into AccountType.
func ParseAccountType(value string) (AccountType, error) {
	for _, candidate := range validAccountTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid account type %q", value)
}
