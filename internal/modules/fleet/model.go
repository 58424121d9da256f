// README: Driver and vehicle shapes plus the single active selection.
package fleet

import (
	"errors"

	"keralaride/internal/apiclient"
	"keralaride/internal/modules/pricing"
	"keralaride/internal/types"
)

type (
	Driver  = apiclient.Driver
	Vehicle = apiclient.Vehicle
)

var ErrVehicleNotFound = errors.New("vehicle not found")

// Selection is the one vehicle the rider has picked. The fare structure is
// copied at selection time.
type Selection struct {
	VehicleID     types.ID               `json:"vehicleId"`
	DriverID      string                 `json:"driverId"`
	FareStructure *pricing.FareStructure `json:"fareStructure,omitempty"`
}

// Available keeps the drivers that own at least one vehicle, in order.
func Available(drivers []Driver) []Driver {
	out := make([]Driver, 0, len(drivers))
	for _, d := range drivers {
		if len(d.Vehicles) > 0 {
			out = append(out, d)
		}
	}
	return out
}

// FindVehicle looks up vehicleID across drivers and returns it with its owner.
func FindVehicle(drivers []Driver, vehicleID types.ID) (Vehicle, Driver, error) {
	for _, d := range drivers {
		for _, v := range d.Vehicles {
			if v.ID == vehicleID {
				return v, d, nil
			}
		}
	}
	return Vehicle{}, Driver{}, ErrVehicleNotFound
}
