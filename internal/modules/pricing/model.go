// README: Fare structure and quote definitions.
package pricing

import "keralaride/internal/types"

const (
	// DefaultBookingFee is added to every trip fare.
	DefaultBookingFee int64 = 199

	// Legacy flat formula used when a vehicle carries no fare structure.
	LegacyPerKmRate = 90.0
	LegacyBaseFare  = 375.0
)

// FareStructure is a vehicle's pricing rule. Waiting charge and cancellation
// fee are carried for display; they do not enter the trip fare.
type FareStructure struct {
	PerKilometerRate       types.Number `json:"perKilometerRate"`
	MinimumFare            types.Number `json:"minimumFare"`
	WaitingChargePerMinute types.Number `json:"waitingChargePerMinute"`
	CancellationFee        types.Number `json:"cancellationFee"`
}

type Line struct {
	Label  string `json:"label"`
	Amount int64  `json:"amount"`
}

// Quote is a priced trip. Breakdown amounts always sum to Total.
type Quote struct {
	DistanceMeters float64 `json:"distanceMeters"`
	DistanceKm     float64 `json:"distanceKm"`
	DistanceFare   int64   `json:"distanceFare"`
	MinimumFare    int64   `json:"minimumFare"`
	MinimumApplied bool    `json:"minimumApplied"`
	Legacy         bool    `json:"legacy"`
	Fare           int64   `json:"fare"`
	BookingFee     int64   `json:"bookingFee"`
	Total          int64   `json:"total"`
	Currency       string  `json:"currency"`
	Breakdown      []Line  `json:"breakdown"`
}
