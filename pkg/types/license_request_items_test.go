package types

import (
	"testing"

	"github.com/google/uuid"
)

func TestLicenseRequestItemsValidate(t *testing.T) {
	valid := LicenseRequestItems{{LicenseTypeID: uuid.New(), Quantity: 3, Justification: "initial stock"}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid items rejected: %v", err)
	}

	cases := []struct {
		name  string
		items LicenseRequestItems
	}{
		{"empty", LicenseRequestItems{}},
		{"nil type id", LicenseRequestItems{{Quantity: 1}}},
		{"zero quantity", LicenseRequestItems{{LicenseTypeID: uuid.New(), Quantity: 0}}},
		{"negative quantity", LicenseRequestItems{{LicenseTypeID: uuid.New(), Quantity: -2}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.items.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLicenseRequestItemsScanRejectsMalformedBlob(t *testing.T) {
	var items LicenseRequestItems
	if err := items.Scan([]byte(`{"not":"a list"}`)); err == nil {
		t.Fatal("expected scan error for non-array payload")
	}
	if err := items.Scan([]byte(`[]`)); err == nil {
		t.Fatal("expected scan error for empty list")
	}
	if err := items.Scan(nil); err == nil {
		t.Fatal("expected scan error for null column")
	}
}

func TestLicenseRequestItemsRoundTrip(t *testing.T) {
	typeID := uuid.New()
	original := LicenseRequestItems{{LicenseTypeID: typeID, Quantity: 5, Justification: "restock"}}

	value, err := original.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}

	var decoded LicenseRequestItems
	if err := decoded.Scan([]byte(value.(string))); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(decoded) != 1 || decoded[0].LicenseTypeID != typeID || decoded[0].Quantity != 5 {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}
