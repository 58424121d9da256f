package ai

// BookingCommand captures the structured output from the model.
type BookingCommand struct {
	// Intent is "booking" when enough was said to fill the form,
	// "clarification" when a question is needed, or "chat".
	Intent string `json:"intent"`

	// Origin and Destination are free-text place names for the Place Resolver.
	Origin      *string `json:"origin,omitempty"`
	Destination *string `json:"destination,omitempty"`

	// Date is YYYY-MM-DD and Time is HH:MM, both in the rider's timezone.
	Date *string `json:"date,omitempty"`
	Time *string `json:"time,omitempty"`

	// Phone is the 10-digit contact number if the rider said one.
	Phone *string `json:"phone,omitempty"`

	// Reply is a short response read back to the rider.
	Reply string `json:"reply"`
}
