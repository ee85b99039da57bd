package app

import (
	"errors"
	"testing"
)

func TestApplyFeeTier(t *testing.T) {
	tests := []struct {
		name      string
		converted float64
		want      int64
		wantErr   bool
	}{
		{
			name:      "zero stays zero",
			converted: 0,
			want:      0,
		},
		{
			name:      "low tier takes 3 percent",
			converted: 5000,
			want:      485000,
		},
		{
			name:      "boundary 10000 resolves to the low tier",
			converted: 10000,
			want:      970000,
		},
		{
			name:      "mid tier takes 2 percent",
			converted: 20000,
			want:      1960000,
		},
		{
			name:      "mid tier well above the overlap",
			converted: 50000,
			want:      4900000,
		},
		{
			name:      "high tier takes 1.5 percent",
			converted: 200000,
			want:      19700000,
		},
		{
			name:      "negative amount is rejected",
			converted: -5,
			wantErr:   true,
		},
		{
			name:      "gap between tiers is rejected",
			converted: 99999.9,
			wantErr:   true,
		},
		{
			name:      "exactly 100000 matches no tier",
			converted: 100000,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applyFeeTier(tt.converted)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConversionResult) {
					t.Fatalf("expected ErrInvalidConversionResult, got %v (value %d)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %d paise, got %d", tt.want, got)
			}
		})
	}
}

func TestApplyFeeTierUpperMidBoundary(t *testing.T) {
	// 99999 is the last value of the mid tier; anything beyond it up to and
	// including 100000 is rejected.
	if _, err := applyFeeTier(99999); err != nil {
		t.Fatalf("expected 99999 to be accepted, got %v", err)
	}
	if _, err := applyFeeTier(99999.5); !errors.Is(err, ErrInvalidConversionResult) {
		t.Fatalf("expected 99999.5 to be rejected, got %v", err)
	}
}
