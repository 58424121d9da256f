package fleet

import (
	"keralaride/internal/modules/pricing"
	"keralaride/internal/types"
)

// Selector holds at most one active Selection. It is not safe for
// concurrent use; each booking flow owns its own Selector.
type Selector struct {
	current *Selection
}

// Restore rebuilds a Selector from a persisted selection.
func Restore(s *Selection) *Selector {
	if s == nil {
		return &Selector{}
	}
	cp := *s
	return &Selector{current: &cp}
}

// Select replaces any prior selection with vehicleID from drivers.
func (s *Selector) Select(drivers []Driver, vehicleID types.ID) (Selection, error) {
	v, d, err := FindVehicle(drivers, vehicleID)
	if err != nil {
		return Selection{}, err
	}
	sel := Selection{VehicleID: v.ID, DriverID: d.Email}
	if v.FareStructure != nil {
		fs := *v.FareStructure
		sel.FareStructure = &fs
	}
	s.current = &sel
	return sel, nil
}

// Current returns the active selection, if any.
func (s *Selector) Current() (Selection, bool) {
	if s.current == nil {
		return Selection{}, false
	}
	return *s.current, true
}

func (s *Selector) Reset() {
	s.current = nil
}

// FareStructure is the active vehicle's fare structure, nil when nothing is
// selected or the vehicle carries none.
func (s *Selector) FareStructure() *pricing.FareStructure {
	if s.current == nil {
		return nil
	}
	return s.current.FareStructure
}
