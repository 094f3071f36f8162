package enums

// AuthorizationReason explains the outcome of a test authorization decision.
// Negative reasons are ordinary result values, not errors.
type AuthorizationReason string

const (
	AuthorizationReasonFreeRetest          AuthorizationReason = "free_retest"
	AuthorizationReasonLicenseConsumed     AuthorizationReason = "license_consumed"
	AuthorizationReasonInsufficientLicense AuthorizationReason = "insufficient_licenses"
	AuthorizationReasonInvalidLicenseType  AuthorizationReason = "invalid_license_type"
)

var validAuthorizationReasons = []AuthorizationReason{
	AuthorizationReasonFreeRetest,
	AuthorizationReasonLicenseConsumed,
	AuthorizationReasonInsufficientLicense,
	AuthorizationReasonInvalidLicenseType,
}

// IsValid reports whether the value matches a known authorization reason.
func (r AuthorizationReason) IsValid() bool {
	for _, candidate := range validAuthorizationReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// Authorized reports whether the reason corresponds to a granted test.
func (r AuthorizationReason) Authorized() bool {
	return r == AuthorizationReasonFreeRetest || r == AuthorizationReasonLicenseConsumed
}
