package fixedpoint

import (
	"errors"
	"math"
	"testing"
)

func TestPow10(t *testing.T) {
	tests := []struct {
		decimals uint8
		want     uint64
		wantErr  bool
	}{
		{0, 1, false},
		{1, 10, false},
		{2, 100, false},
		{9, 1_000_000_000, false},
		{19, 10_000_000_000_000_000_000, false},
		{20, 0, true},
		{255, 0, true},
	}

	for _, tt := range tests {
		got, err := Pow10(tt.decimals)
		if tt.wantErr {
			if !errors.Is(err, ErrOverflow) {
				t.Errorf("Pow10(%d) error = %v, want ErrOverflow", tt.decimals, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Pow10(%d) unexpected error: %v", tt.decimals, err)
		}
		if got != tt.want {
			t.Errorf("Pow10(%d) = %d, want %d", tt.decimals, got, tt.want)
		}
	}
}

func TestToSmallestUnit(t *testing.T) {
	tests := []struct {
		name     string
		display  uint64
		decimals uint8
		want     uint64
		wantErr  bool
	}{
		{"scenario amount", 5, 2, 500, false},
		{"nine decimals", 3, 9, 3_000_000_000, false},
		{"zero decimals", 42, 0, 42, false},
		{"zero amount huge decimals", 0, 200, 0, false},
		{"max at zero decimals", math.MaxUint64, 0, math.MaxUint64, false},
		{"largest exact fit", 18, 18, 18_000_000_000_000_000_000, false},
		{"one past fit", 19, 18, 0, true},
		{"max times ten", math.MaxUint64, 1, 0, true},
		{"exponent overflow", 1, 20, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToSmallestUnit(tt.display, tt.decimals)
			if tt.wantErr {
				if !errors.Is(err, ErrOverflow) {
					t.Errorf("ToSmallestUnit(%d, %d) error = %v, want ErrOverflow", tt.display, tt.decimals, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ToSmallestUnit(%d, %d) unexpected error: %v", tt.display, tt.decimals, err)
			}
			if got != tt.want {
				t.Errorf("ToSmallestUnit(%d, %d) = %d, want %d", tt.display, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestToSmallestUnit_Injective(t *testing.T) {
	const decimals = 6
	seen := make(map[uint64]uint64)
	for a := uint64(0); a < 2000; a++ {
		got, err := ToSmallestUnit(a, decimals)
		if err != nil {
			t.Fatalf("ToSmallestUnit(%d) failed: %v", a, err)
		}
		if prev, ok := seen[got]; ok {
			t.Fatalf("ToSmallestUnit(%d) = ToSmallestUnit(%d) = %d", a, prev, got)
		}
		seen[got] = a

		back, err := FromSmallestUnit(got, decimals)
		if err != nil {
			t.Fatalf("FromSmallestUnit(%d) failed: %v", got, err)
		}
		if back != a {
			t.Errorf("FromSmallestUnit(ToSmallestUnit(%d)) = %d", a, back)
		}
	}
}

func TestFromSmallestUnit_Inexact(t *testing.T) {
	if _, err := FromSmallestUnit(501, 2); !errors.Is(err, ErrInexact) {
		t.Errorf("FromSmallestUnit(501, 2) error = %v, want ErrInexact", err)
	}
	if _, err := FromSmallestUnit(1, 25); !errors.Is(err, ErrInexact) {
		t.Errorf("FromSmallestUnit(1, 25) error = %v, want ErrInexact", err)
	}
	if got, err := FromSmallestUnit(0, 25); err != nil || got != 0 {
		t.Errorf("FromSmallestUnit(0, 25) = %d, %v, want 0, nil", got, err)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		smallest uint64
		decimals uint8
		want     string
	}{
		{500, 2, "5.00"},
		{1500, 3, "1.500"},
		{1, 9, "0.000000001"},
		{42, 0, "42"},
		{math.MaxUint64, 0, "18446744073709551615"},
	}

	for _, tt := range tests {
		if got := Format(tt.smallest, tt.decimals); got != tt.want {
			t.Errorf("Format(%d, %d) = %q, want %q", tt.smallest, tt.decimals, got, tt.want)
		}
	}
}

func TestCheckedArithmetic(t *testing.T) {
	if _, err := Add(math.MaxUint64, 1); !errors.Is(err, ErrOverflow) {
		t.Errorf("Add overflow error = %v, want ErrOverflow", err)
	}
	if _, err := Sub(1, 2); !errors.Is(err, ErrUnderflow) {
		t.Errorf("Sub underflow error = %v, want ErrUnderflow", err)
	}
	if _, err := Mul(1<<32, 1<<32); !errors.Is(err, ErrOverflow) {
		t.Errorf("Mul overflow error = %v, want ErrOverflow", err)
	}
	if got, err := Mul(10, 5); err != nil || got != 50 {
		t.Errorf("Mul(10, 5) = %d, %v, want 50, nil", got, err)
	}
}
