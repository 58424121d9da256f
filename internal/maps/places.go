package maps

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"googlemaps.github.io/maps"

	"keralaride/internal/metrics"
)

// MinQueryLength is the shortest input that reaches the provider.
const MinQueryLength = 3

// regionKeywords are place names that mark a prediction as inside Kerala.
var regionKeywords = []string{
	"kerala",
	"thiruvananthapuram", "trivandrum",
	"kochi", "cochin", "ernakulam",
	"kozhikode", "calicut",
	"thrissur", "trichur",
	"kollam", "quilon",
	"alappuzha", "alleppey",
	"kottayam",
	"palakkad", "palghat",
	"malappuram",
	"kannur", "cannanore",
	"kasaragod", "kasargod",
	"pathanamthitta",
	"idukki",
	"wayanad",
	"munnar", "varkala", "kovalam", "kumarakom", "thekkady", "guruvayur",
}

// Autocompleter is the subset of *maps.Client used for place lookups.
type Autocompleter interface {
	PlaceAutocomplete(ctx context.Context, r *maps.PlaceAutocompleteRequest) (maps.AutocompleteResponse, error)
}

// NewClient creates a Google Maps client shared by the places and route services.
func NewClient(apiKey string) (*maps.Client, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return client, nil
}

// PlacesService turns free-text input into region-restricted place candidates.
type PlacesService struct {
	client Autocompleter
	region Region
}

func NewPlacesService(client Autocompleter, region Region) *PlacesService {
	return &PlacesService{client: client, region: region}
}

// Resolve returns the candidates for query. The sequence is lazy: the
// provider is called when iteration starts, and a second iteration yields
// nothing. Queries shorter than MinQueryLength never reach the provider.
// Provider failures produce an empty sequence.
func (s *PlacesService) Resolve(ctx context.Context, query string) iter.Seq[Place] {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return func(func(Place) bool) {}
	}

	var once sync.Once
	return func(yield func(Place) bool) {
		once.Do(func() {
			resp, err := s.client.PlaceAutocomplete(ctx, &maps.PlaceAutocompleteRequest{
				Input:        query,
				Location:     &maps.LatLng{Lat: s.region.Center().Lat, Lng: s.region.Center().Lng},
				Radius:       s.region.RadiusMeters(),
				StrictBounds: true,
				Components:   map[maps.Component][]string{maps.ComponentCountry: {s.region.Country}},
			})
			if err != nil {
				metrics.PlaceLookups.WithLabelValues("error").Inc()
				logrus.WithError(err).WithField("query", query).Warn("place lookup failed")
				return
			}
			metrics.PlaceLookups.WithLabelValues("ok").Inc()

			for _, p := range resp.Predictions {
				if !InRegion(p.Description) {
					continue
				}
				if !yield(Place{ID: p.PlaceID, Description: p.Description}) {
					return
				}
			}
		})
	}
}

// InRegion reports whether description names a place in the allow-list.
func InRegion(description string) bool {
	d := strings.ToLower(description)
	for _, kw := range regionKeywords {
		if strings.Contains(d, kw) {
			return true
		}
	}
	return false
}

// FilterRegion keeps the descriptions that pass InRegion, in order.
func FilterRegion(descriptions []string) []string {
	var out []string
	for _, d := range descriptions {
		if InRegion(d) {
			out = append(out, d)
		}
	}
	return out
}
