// README: Common value objects used across modules.
package types

// ID identifies sessions, bookings, vehicles and drivers. Driver ids are
// email addresses, as issued by the external API.
type ID string

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}
