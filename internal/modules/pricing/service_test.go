package pricing

import (
	"math"
	"testing"

	"keralaride/internal/types"
)

func fs(rate, minimum float64) *FareStructure {
	return &FareStructure{PerKilometerRate: types.Number(rate), MinimumFare: types.Number(minimum)}
}

func TestComputeFare(t *testing.T) {
	tests := []struct {
		name     string
		meters   float64
		fare     *FareStructure
		wantFare int64
	}{
		{name: "Kochi to Thiruvananthapuram (150km x 3)", meters: 150000, fare: fs(3, 100), wantFare: 450},
		{name: "200km x 2 above floor", meters: 200000, fare: fs(2, 50), wantFare: 400},
		{name: "short trip hits minimum", meters: 1000, fare: fs(3, 100), wantFare: 100},
		{name: "zero distance is minimum", meters: 0, fare: fs(12, 250), wantFare: 250},
		{name: "zero rate is minimum", meters: 50000, fare: fs(0, 80), wantFare: 80},
		{name: "missing fields are zero", meters: 50000, fare: &FareStructure{}, wantFare: 0},
		{name: "negative distance treated as zero", meters: -500, fare: fs(10, 60), wantFare: 60},
		{name: "NaN distance treated as zero", meters: math.NaN(), fare: fs(10, 60), wantFare: 60},
		{name: "rounds to nearest unit", meters: 10500, fare: fs(11, 0), wantFare: 116}, // 115.5 -> 116
		{name: "fractional minimum never undercut", meters: 0, fare: fs(1, 100.4), wantFare: 101},
		{name: "legacy fallback", meters: 10000, fare: nil, wantFare: 1275},
		{name: "legacy fallback zero distance", meters: 0, fare: nil, wantFare: 375},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeFare(tt.meters, tt.fare); got != tt.wantFare {
				t.Errorf("ComputeFare(%v) = %d, want %d", tt.meters, got, tt.wantFare)
			}
		})
	}
}

func TestComputeFareLegacyFormula(t *testing.T) {
	for _, m := range []float64{0, 1, 999, 1234, 56789, 150000} {
		want := int64(math.Round(m/1000*90 + 375))
		if got := ComputeFare(m, nil); got != want {
			t.Errorf("ComputeFare(%v, nil) = %d, want %d", m, got, want)
		}
	}
}

func TestComputeFareMinimumFloor(t *testing.T) {
	structure := fs(7.5, 120)
	for m := 0.0; m <= 40000; m += 1250 {
		if got := ComputeFare(m, structure); got < 120 {
			t.Fatalf("ComputeFare(%v) = %d, below minimum 120", m, got)
		}
	}
}

func TestComputeFareMonotonic(t *testing.T) {
	structure := fs(4.2, 90)
	prev := ComputeFare(0, structure)
	for m := 500.0; m <= 300000; m += 500 {
		got := ComputeFare(m, structure)
		if got < prev {
			t.Fatalf("fare decreased at %vm: %d < %d", m, got, prev)
		}
		prev = got
	}
}

func TestComputeTotal(t *testing.T) {
	for _, fare := range []int64{0, 1, 450, 400, 99999} {
		if got := ComputeTotal(fare); got != fare+199 {
			t.Errorf("ComputeTotal(%d) = %d, want %d", fare, got, fare+199)
		}
	}
}

func TestServiceQuote(t *testing.T) {
	s := NewService(DefaultBookingFee, "INR")

	q := s.Quote(150000, fs(3, 100))
	if q.Fare != 450 || q.Total != 649 {
		t.Fatalf("quote fare/total = %d/%d, want 450/649", q.Fare, q.Total)
	}
	if q.MinimumApplied {
		t.Error("minimum should not apply to a 150km trip")
	}
	if q.DistanceKm != 150 {
		t.Errorf("DistanceKm = %v, want 150", q.DistanceKm)
	}

	short := s.Quote(2000, fs(3, 100))
	if !short.MinimumApplied || short.Fare != 100 {
		t.Errorf("short quote = %+v, want minimum applied at 100", short)
	}

	legacy := s.Quote(10000, nil)
	if !legacy.Legacy || legacy.Total != 1275+199 {
		t.Errorf("legacy quote = %+v", legacy)
	}
}

func TestServiceQuoteBreakdownSumsToTotal(t *testing.T) {
	s := NewService(199, "INR")
	for _, q := range []Quote{
		s.Quote(150000, fs(3, 100)),
		s.Quote(100, fs(3, 100)),
		s.Quote(42000, nil),
	} {
		var sum int64
		labels := map[string]int{}
		for _, l := range q.Breakdown {
			sum += l.Amount
			labels[l.Label]++
		}
		if sum != q.Total {
			t.Errorf("breakdown sums to %d, total %d", sum, q.Total)
		}
		for label, n := range labels {
			if n > 1 {
				t.Errorf("label %q appears %d times", label, n)
			}
		}
	}
}

func TestNewServiceClampsFee(t *testing.T) {
	s := NewService(-5, "")
	if s.BookingFee() != 0 || s.Currency() != "INR" {
		t.Errorf("NewService(-5, \"\") = fee %d currency %q", s.BookingFee(), s.Currency())
	}
}
