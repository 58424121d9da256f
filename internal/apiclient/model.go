package apiclient

import (
	"encoding/json"
	"strings"

	"keralaride/internal/modules/pricing"
	"keralaride/internal/types"
)

type User struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Driver is keyed by email; Vehicles is filled by callers that join the
// driver list with the vehicle list.
type Driver struct {
	Email    string    `json:"email" validate:"required,email"`
	Name     string    `json:"name"`
	Phone    string    `json:"phone"`
	ImageURL string    `json:"imageUrl,omitempty"`
	Vehicles []Vehicle `json:"vehicles,omitempty" validate:"-"`
}

// Vehicle belongs to the driver named by Email.
type Vehicle struct {
	ID            types.ID               `json:"id" validate:"required"`
	Email         string                 `json:"email" validate:"required,email"`
	Make          string                 `json:"make"`
	Model         string                 `json:"model"`
	Year          types.Number           `json:"year"`
	SeatsNo       types.Number           `json:"seatsNo"`
	LicensePlate  string                 `json:"licensePlate"`
	VehicleClass  string                 `json:"vehicleClass"`
	VehicleType   string                 `json:"vehicleType"`
	Images        []string               `json:"images,omitempty"`
	Documents     []string               `json:"documents,omitempty"`
	FareStructure *pricing.FareStructure `json:"fareStructure,omitempty"`
}

// bookingIDKeys are the places the booking endpoint has put the new id, in
// order of preference.
var bookingIDKeys = []string{"bookingId", "id", "_id"}

// bookingReference digs the server id out of a create-booking response. Ids
// may be strings, numbers or Mongo {"$oid": ...} objects, at the top level
// or under "booking". Anything else, including a non-JSON body, yields "".
func bookingReference(raw []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	for _, key := range bookingIDKeys {
		if id := idValue(fields[key]); id != "" {
			return id
		}
	}
	if nested, ok := fields["booking"]; ok {
		return bookingReference(nested)
	}
	return ""
}

func idValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var oid struct {
		OID string `json:"$oid"`
	}
	if err := json.Unmarshal(raw, &oid); err == nil {
		return strings.TrimSpace(oid.OID)
	}
	return ""
}
