package enums

import "fmt"

// LicenseRequestStatus maps to the license_request_status_enum enum in Postgres.
type LicenseRequestStatus string

const (
	LicenseRequestStatusPending  LicenseRequestStatus = "pending"
	LicenseRequestStatusApproved LicenseRequestStatus = "approved"
	LicenseRequestStatusRejected LicenseRequestStatus = "rejected"
)

var validLicenseRequestStatuses = []LicenseRequestStatus{
	LicenseRequestStatusPending,
	LicenseRequestStatusApproved,
	LicenseRequestStatusRejected,
}

// IsValid reports whether the value matches the canonical request status enum.
func (s LicenseRequestStatus) IsValid() bool {
	for _, candidate := range validLicenseRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLicenseRequestStatus converts raw input into LicenseRequestStatus.
func ParseLicenseRequestStatus(value string) (LicenseRequestStatus, error) {
	for _, candidate := range validLicenseRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid license request status %q", value)
}
