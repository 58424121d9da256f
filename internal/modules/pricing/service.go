// README: Pricing service computes trip fares and totals.
package pricing

import (
	"math"

	"keralaride/internal/metrics"
)

// ComputeFare prices a trip of distanceMeters. A nil structure falls back to
// the legacy flat formula. The result never drops below the minimum fare.
func ComputeFare(distanceMeters float64, fs *FareStructure) int64 {
	km := nonNegative(distanceMeters) / 1000
	if fs == nil {
		return int64(math.Round(km*LegacyPerKmRate + LegacyBaseFare))
	}

	rate := nonNegative(fs.PerKilometerRate.Float())
	minimum := nonNegative(fs.MinimumFare.Float())

	fare := math.Round(math.Max(km*rate, minimum))
	if fare < minimum {
		fare = math.Ceil(minimum)
	}
	return int64(fare)
}

// ComputeTotal adds the default booking fee.
func ComputeTotal(fare int64) int64 {
	return fare + DefaultBookingFee
}

type Service struct {
	bookingFee int64
	currency   string
}

func NewService(bookingFee int64, currency string) *Service {
	if bookingFee < 0 {
		bookingFee = 0
	}
	if currency == "" {
		currency = "INR"
	}
	return &Service{bookingFee: bookingFee, currency: currency}
}

func (s *Service) BookingFee() int64 { return s.bookingFee }

func (s *Service) Currency() string { return s.currency }

// Total adds the configured booking fee to fare.
func (s *Service) Total(fare int64) int64 {
	return fare + s.bookingFee
}

// Quote prices a trip and returns the breakdown shown to the rider.
func (s *Service) Quote(distanceMeters float64, fs *FareStructure) Quote {
	metrics.FareQuotes.Inc()

	d := nonNegative(distanceMeters)
	q := Quote{
		DistanceMeters: d,
		DistanceKm:     math.Round(d/10) / 100,
		Fare:           ComputeFare(d, fs),
		BookingFee:     s.bookingFee,
		Currency:       s.currency,
		Legacy:         fs == nil,
	}
	q.Total = s.Total(q.Fare)

	label := "Trip Fare"
	if fs == nil {
		q.DistanceFare = q.Fare
		label = "Standard Fare"
	} else {
		q.DistanceFare = int64(math.Round(d / 1000 * nonNegative(fs.PerKilometerRate.Float())))
		q.MinimumFare = int64(math.Ceil(nonNegative(fs.MinimumFare.Float())))
		q.MinimumApplied = q.Fare > q.DistanceFare
		if q.MinimumApplied {
			label = "Minimum Fare"
		}
	}

	q.Breakdown = []Line{
		{Label: label, Amount: q.Fare},
		{Label: "Booking Fee", Amount: q.BookingFee},
	}
	return q
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
