package fleet

import (
	"context"
	"fmt"

	"keralaride/internal/apiclient"
)

// Source is the subset of the REST client the fleet service needs.
type Source interface {
	DriverList(ctx context.Context, token string) ([]apiclient.Driver, error)
	Vehicles(ctx context.Context, token string) ([]apiclient.Vehicle, error)
	VehiclesByEmail(ctx context.Context, token, email string) ([]apiclient.Vehicle, error)
}

type Service struct {
	source Source
}

func NewService(source Source) *Service {
	return &Service{source: source}
}

// ListDrivers returns the drivers that own at least one vehicle, each with
// its vehicles attached.
func (s *Service) ListDrivers(ctx context.Context, token string) ([]Driver, error) {
	drivers, err := s.source.DriverList(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	vehicles, err := s.source.Vehicles(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	return Available(groupByDriver(drivers, vehicles)), nil
}

// VehiclesByEmail lists one driver's vehicles.
func (s *Service) VehiclesByEmail(ctx context.Context, token, email string) ([]Vehicle, error) {
	vs, err := s.source.VehiclesByEmail(ctx, token, email)
	if err != nil {
		return nil, fmt.Errorf("vehicles for %s: %w", email, err)
	}
	return vs, nil
}

func groupByDriver(drivers []Driver, vehicles []Vehicle) []Driver {
	byEmail := make(map[string][]Vehicle, len(drivers))
	for _, v := range vehicles {
		byEmail[v.Email] = append(byEmail[v.Email], v)
	}
	out := make([]Driver, len(drivers))
	for i, d := range drivers {
		d.Vehicles = byEmail[d.Email]
		out[i] = d
	}
	return out
}
