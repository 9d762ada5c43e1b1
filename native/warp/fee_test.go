package warp

import (
	"errors"
	"math/big"
	"testing"
)

func TestFeeFor(t *testing.T) {
	cases := []struct {
		multiplier Multiplier
		amount     int64
		want       int64
	}{
		{DefaultMultiplier, 100, 150},
		{DefaultMultiplier, 1, 1},
		{DefaultMultiplier, 3, 4},
		{DefaultMultiplier, 0, 0},
		{Multiplier{Num: 1, Den: 1}, 77, 77},
		{Multiplier{Num: 7, Den: 4}, 10, 17},
	}
	for _, tc := range cases {
		got := tc.multiplier.FeeFor(big.NewInt(tc.amount))
		if got.Cmp(big.NewInt(tc.want)) != 0 {
			t.Fatalf("fee for %d at %s: got %s want %d", tc.amount, tc.multiplier, got, tc.want)
		}
	}
	if fee := DefaultMultiplier.FeeFor(nil); fee.Sign() != 0 {
		t.Fatalf("expected zero fee for nil amount, got %s", fee)
	}
}

func TestParseMultiplier(t *testing.T) {
	for raw, want := range map[string]Multiplier{
		"1.5":  {Num: 3, Den: 2},
		"3/2":  {Num: 3, Den: 2},
		" 2 ":  {Num: 2, Den: 1},
		"1":    {Num: 1, Den: 1},
		"1.25": {Num: 5, Den: 4},
	} {
		got, err := ParseMultiplier(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %+v want %+v", raw, got, want)
		}
	}
	for _, raw := range []string{"", "abc", "0.99", "-2"} {
		if _, err := ParseMultiplier(raw); err == nil {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
	if _, err := ParseMultiplier("0.5"); !errors.Is(err, ErrInvalidMultiplier) {
		t.Fatalf("expected ErrInvalidMultiplier, got %v", err)
	}
}

func TestMultiplierString(t *testing.T) {
	if got := DefaultMultiplier.String(); got != "1.5" {
		t.Fatalf("unexpected rendering: %s", got)
	}
	if got := (Multiplier{Num: 4, Den: 3}).String(); got != "4/3" {
		t.Fatalf("unexpected rendering: %s", got)
	}
	if !DefaultMultiplier.Equal(Multiplier{Num: 6, Den: 4}) {
		t.Fatalf("expected 6/4 to equal 3/2")
	}
}
