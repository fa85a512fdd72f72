package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func testAddress(b byte) Address {
	var a Address
	for i := range a {
		a[i] = b + byte(i)
	}
	return a
}

func TestParseAddress(t *testing.T) {
	t.Run("zero address", func(t *testing.T) {
		a, err := ParseAddress("11111111111111111111111111111111")
		if err != nil {
			t.Fatalf("ParseAddress failed: %v", err)
		}
		if !a.IsZero() {
			t.Errorf("IsZero() = false, want true")
		}
	})

	t.Run("round trip", func(t *testing.T) {
		want := testAddress(7)
		got, err := ParseAddress(want.String())
		if err != nil {
			t.Fatalf("ParseAddress failed: %v", err)
		}
		if got != want {
			t.Errorf("ParseAddress(%q) = %v, want %v", want.String(), got, want)
		}
	})

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"invalid alphabet", "0OIl"},
		{"too short", "1111"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAddress(tt.input)
			if !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("ParseAddress(%q) error = %v, want ErrInvalidAddress", tt.input, err)
			}
		})
	}
}

func TestAddressJSON(t *testing.T) {
	inv := Investor{Address: testAddress(1), Owner: testAddress(2), FullNames: "Jane Doe", Country: "KE"}

	data, err := json.Marshal(inv)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var got Investor
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.Owner != inv.Owner {
		t.Errorf("Owner = %v, want %v", got.Owner, inv.Owner)
	}
}

func TestParseReitType(t *testing.T) {
	tests := []struct {
		code    uint8
		want    ReitType
		wantErr bool
	}{
		{0, 0, true},
		{1, ReitTypeDevelopment, false},
		{2, ReitTypeIncome, false},
		{3, 0, true},
		{255, 0, true},
	}

	for _, tt := range tests {
		got, err := ParseReitType(tt.code)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownReitType) {
				t.Errorf("ParseReitType(%d) error = %v, want ErrUnknownReitType", tt.code, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseReitType(%d) unexpected error: %v", tt.code, err)
		}
		if got != tt.want {
			t.Errorf("ParseReitType(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}

	if s := ReitTypeIncome.String(); s != "I-REIT" {
		t.Errorf("String() = %q, want %q", s, "I-REIT")
	}
}

func TestConfigsPushIssuer(t *testing.T) {
	c := Configs{Capacity: 2}
	issuer := MarketIssuer{Issuer: "Acorn", Name: "Acorn D-REIT", TypeOfReit: ReitTypeDevelopment, ListingDate: "2021-02-01"}

	for i := 0; i < 2; i++ {
		if err := c.PushIssuer(issuer); err != nil {
			t.Fatalf("PushIssuer #%d failed: %v", i, err)
		}
	}

	err := c.PushIssuer(issuer)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("PushIssuer past capacity error = %v, want ErrCapacityExceeded", err)
	}
	if len(c.Issuers) != 2 {
		t.Errorf("len(Issuers) = %d, want 2", len(c.Issuers))
	}
}

func TestTrustSchemeEnrollInvestor(t *testing.T) {
	s := TrustScheme{InvestorCapacity: 1}
	a, b := testAddress(1), testAddress(2)

	if err := s.EnrollInvestor(a); err != nil {
		t.Fatalf("EnrollInvestor failed: %v", err)
	}
	// Enrolling the same investor again is a no-op.
	if err := s.EnrollInvestor(a); err != nil {
		t.Errorf("EnrollInvestor repeat error = %v, want nil", err)
	}
	if err := s.EnrollInvestor(b); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("EnrollInvestor past capacity error = %v, want ErrCapacityExceeded", err)
	}
	if !s.HasInvestor(a) || s.HasInvestor(b) {
		t.Errorf("Investors = %v, want only %v", s.Investors, a)
	}
}
