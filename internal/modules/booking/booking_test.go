// README: Booking submitter tests (validation, assembly, submission outcomes, status lifecycle).
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"keralaride/internal/apiclient"
	"keralaride/internal/maps"
	"keralaride/internal/modules/fleet"
	"keralaride/internal/modules/pricing"
	"keralaride/internal/types"
)

var ist = time.FixedZone("IST", 5*3600+1800)

// fixedNow is 2025-03-10 09:00 IST.
var fixedNow = time.Date(2025, 3, 10, 9, 0, 0, 0, ist)

type stubAPI struct {
	user      *apiclient.User
	userErr   error
	createID  string
	createErr error
	created   []any
	bookings  []json.RawMessage
	updated   map[string]string
	updateErr error
}

func (s *stubAPI) UserDetails(context.Context, string) (*apiclient.User, error) {
	return s.user, s.userErr
}

func (s *stubAPI) CreateBooking(_ context.Context, _ string, payload any) (string, error) {
	s.created = append(s.created, payload)
	return s.createID, s.createErr
}

func (s *stubAPI) BookingDetails(context.Context, string) ([]json.RawMessage, error) {
	return s.bookings, nil
}

func (s *stubAPI) UpdateBookingStatus(_ context.Context, _ string, id, status string) error {
	if s.updated == nil {
		s.updated = map[string]string{}
	}
	s.updated[id] = status
	return s.updateErr
}

type recordingSink struct {
	events []Event
	err    error
}

func (r *recordingSink) Publish(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func newTestService(api API, sinks ...EventSink) *Service {
	s := NewService(api, pricing.NewService(pricing.DefaultBookingFee, "INR"), ist, sinks...)
	s.now = func() time.Time { return fixedNow }
	return s
}

func kochiDraft(meters int, rate, minimum float64) Draft {
	fs := &pricing.FareStructure{PerKilometerRate: types.Number(rate), MinimumFare: types.Number(minimum)}
	v := fleet.Vehicle{ID: "v1", Email: "ravi@example.com", Make: "Toyota", Model: "Innova", FareStructure: fs}
	return Draft{
		Origin:      maps.Place{ID: "p1", Description: "Kochi"},
		Destination: maps.Place{ID: "p2", Description: "Thiruvananthapuram"},
		Route: maps.Route{
			Summary:  "NH66",
			Polyline: "abc",
			Legs: []maps.Leg{{
				Distance:      maps.Measure{Text: "150 km", Value: meters},
				Duration:      maps.Measure{Text: "3 hours", Value: 10800},
				StartLocation: types.Point{Lat: 9.93, Lng: 76.26},
				EndLocation:   types.Point{Lat: 8.52, Lng: 76.93},
			}},
		},
		Selection: &fleet.Selection{VehicleID: "v1", DriverID: "ravi@example.com", FareStructure: fs},
		Vehicle:   v,
		Driver:    fleet.Driver{Email: "ravi@example.com", Name: "Ravi", Vehicles: []fleet.Vehicle{v}},
		Contact:   ContactInfo{Phone: "9876543210", Date: "2025-03-11", Time: "14:30"},
	}
}

func TestAssembleKochiToTrivandrum(t *testing.T) {
	svc := newTestService(&stubAPI{})
	b, err := svc.Assemble(kochiDraft(150000, 3, 100), "Anu", fixedNow)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if b.Price.Fare != 450 || b.Price.Total != 649 || b.Price.BookingFee != 199 {
		t.Errorf("price = %+v, want fare 450 total 649", b.Price)
	}
	if b.Price.MinimumFare != 100 {
		t.Errorf("minimumFare = %d, want 100", b.Price.MinimumFare)
	}
	if b.Origin.Address != "Kochi" || b.Destination.Address != "Thiruvananthapuram" {
		t.Errorf("endpoints = %+v / %+v", b.Origin, b.Destination)
	}
	if b.Distance.Value != 150000 || b.Route.Summary != "NH66" {
		t.Errorf("distance/route = %+v / %+v", b.Distance, b.Route)
	}
	if b.Status != StatusPending {
		t.Errorf("status = %q, want pending", b.Status)
	}
	if b.UserInfo.Name != "Anu" || b.UserInfo.ScheduledDateTime != "2025-03-11T14:30" {
		t.Errorf("userInfo = %+v", b.UserInfo)
	}
	if b.Driver.Details.Vehicles != nil {
		t.Error("driver snapshot should not repeat vehicles")
	}

	raw, _ := json.Marshal(b)
	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)
	if decoded["price"].(map[string]any)["total"].(float64) != 649 {
		t.Errorf("payload price.total = %v", decoded["price"])
	}
}

func TestAssembleSnapshotsVehicle(t *testing.T) {
	svc := newTestService(&stubAPI{})
	d := kochiDraft(150000, 3, 100)
	d.Vehicle.Images = []string{"a.jpg"}
	b, _ := svc.Assemble(d, "Anu", fixedNow)

	d.Vehicle.Images[0] = "changed.jpg"
	d.Vehicle.FareStructure.PerKilometerRate = 50
	if b.Vehicle.Details.Images[0] != "a.jpg" {
		t.Error("images aliased")
	}
	if b.Vehicle.Details.FareStructure.PerKilometerRate != 3 {
		t.Error("fare structure aliased")
	}
}

func TestAssembleRequiresSelection(t *testing.T) {
	svc := newTestService(&stubAPI{})
	d := kochiDraft(150000, 3, 100)
	d.Selection = nil
	if _, err := svc.Assemble(d, "Anu", fixedNow); !errors.Is(err, ErrMissingSelection) {
		t.Fatalf("err = %v, want ErrMissingSelection", err)
	}
}

func TestValidateContact(t *testing.T) {
	v := NewContactValidator(ist)
	cases := []struct {
		name    string
		contact ContactInfo
		bad     []string
	}{
		{"valid tomorrow", ContactInfo{Phone: "9876543210", Date: "2025-03-11", Time: "14:30"}, nil},
		{"valid today", ContactInfo{Phone: "9876543210", Date: "2025-03-10", Time: "08:00"}, nil},
		{"short phone", ContactInfo{Phone: "98765", Date: "2025-03-11", Time: "14:30"}, []string{"phone"}},
		{"letters in phone", ContactInfo{Phone: "98765abcde", Date: "2025-03-11", Time: "14:30"}, []string{"phone"}},
		{"yesterday", ContactInfo{Phone: "9876543210", Date: "2025-03-09", Time: "14:30"}, []string{"date"}},
		{"bad date", ContactInfo{Phone: "9876543210", Date: "11/03/2025", Time: "14:30"}, []string{"date"}},
		{"bad time", ContactInfo{Phone: "9876543210", Date: "2025-03-11", Time: "2pm"}, []string{"time"}},
		{"all missing", ContactInfo{}, []string{"phone", "date", "time"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(tc.contact, fixedNow)
			if len(tc.bad) == 0 {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if len(verr.Fields) != len(tc.bad) {
				t.Errorf("fields = %v, want %v", verr.Fields, tc.bad)
			}
			for _, f := range tc.bad {
				if _, ok := verr.Fields[f]; !ok {
					t.Errorf("missing error for %q in %v", f, verr.Fields)
				}
			}
		})
	}
}

func TestValidateUsesServiceTimezone(t *testing.T) {
	// 2025-03-10 20:00 UTC is already 2025-03-11 in India.
	now := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	err := NewContactValidator(ist).Validate(ContactInfo{Phone: "9876543210", Date: "2025-03-10", Time: "10:00"}, now)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields["date"] == "" {
		t.Fatalf("err = %v, want date error", err)
	}
}

func TestSubmitConfirmed(t *testing.T) {
	api := &stubAPI{user: &apiclient.User{Name: "Anu"}, createID: "B-77"}
	sink := &recordingSink{}
	svc := newTestService(api, sink)

	conf, err := svc.Submit(context.Background(), "tok", kochiDraft(150000, 3, 100))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if conf.Reference != "B-77" || conf.Provisional || conf.Booking.BookingID != "B-77" {
		t.Errorf("confirmation = %+v", conf)
	}
	if conf.Booking.Price.Total != 649 {
		t.Errorf("total = %d, want 649", conf.Booking.Price.Total)
	}
	if len(api.created) != 1 {
		t.Fatalf("CreateBooking called %d times, want 1", len(api.created))
	}
	if posted := api.created[0].(Booking); posted.UserInfo.Name != "Anu" {
		t.Errorf("posted rider name = %q", posted.UserInfo.Name)
	}
	if len(sink.events) != 1 || sink.events[0].Type != EventCreated || sink.events[0].BookingID != "B-77" || sink.events[0].Reference != "B-77" {
		t.Errorf("events = %+v", sink.events)
	}
}

func TestSubmitProvisionalReference(t *testing.T) {
	api := &stubAPI{user: &apiclient.User{Name: "Anu"}}
	conf, err := newTestService(api).Submit(context.Background(), "tok", kochiDraft(150000, 3, 100))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !conf.Provisional {
		t.Error("missing server id should give a provisional reference")
	}
	if !regexp.MustCompile(`^BK[0-9]{4}$`).MatchString(conf.Reference) {
		t.Errorf("reference = %q", conf.Reference)
	}
	if conf.Booking.BookingID != "" {
		t.Error("provisional reference must not become the booking id")
	}
}

func TestSubmitAcceptedWithoutUsableIDIsProvisional(t *testing.T) {
	bodies := []string{
		`Booking created`,
		`{"booking":{"_id":{"unexpected":true}}}`,
	}
	for _, body := range bodies {
		posts := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/userDetails":
				_, _ = w.Write([]byte(`{"name":"Anu"}`))
			case "/bookings":
				posts++
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(body))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))

		sink := &recordingSink{}
		svc := newTestService(apiclient.New(srv.URL, 5*time.Second), sink)
		conf, err := svc.Submit(context.Background(), "tok", kochiDraft(150000, 3, 100))
		srv.Close()

		if err != nil {
			t.Fatalf("body %q: Submit: %v", body, err)
		}
		if !conf.Provisional || conf.Booking.BookingID != "" || conf.Booking.Price.Total != 649 {
			t.Errorf("body %q: confirmation = %+v", body, conf)
		}
		if posts != 1 {
			t.Errorf("body %q: posts = %d, want 1", body, posts)
		}
		if len(sink.events) != 1 || sink.events[0].BookingID != "" || sink.events[0].Reference != conf.Reference {
			t.Errorf("body %q: events = %+v", body, sink.events)
		}
	}
}

func TestSubmitFailureIsNeverConfirmed(t *testing.T) {
	cases := map[string]*stubAPI{
		"user lookup fails": {userErr: errors.New("timeout")},
		"create fails":      {user: &apiclient.User{Name: "Anu"}, createErr: &apiclient.StatusError{Code: 500}},
	}
	for name, api := range cases {
		t.Run(name, func(t *testing.T) {
			sink := &recordingSink{}
			conf, err := newTestService(api, sink).Submit(context.Background(), "tok", kochiDraft(150000, 3, 100))
			var serr *SubmissionError
			if !errors.As(err, &serr) {
				t.Fatalf("err = %v, want *SubmissionError", err)
			}
			if conf != nil {
				t.Errorf("confirmation = %+v, want nil", conf)
			}
			if len(sink.events) != 0 {
				t.Errorf("events published on failure: %+v", sink.events)
			}
		})
	}
}

func TestSubmitValidationMakesNoCall(t *testing.T) {
	api := &stubAPI{user: &apiclient.User{Name: "Anu"}}
	d := kochiDraft(150000, 3, 100)
	d.Contact.Phone = "123"
	_, err := newTestService(api).Submit(context.Background(), "tok", d)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if len(api.created) != 0 {
		t.Error("CreateBooking called despite validation failure")
	}
}

func TestSubmitMissingSelection(t *testing.T) {
	d := kochiDraft(150000, 3, 100)
	d.Selection = nil
	if _, err := newTestService(&stubAPI{}).Submit(context.Background(), "tok", d); !errors.Is(err, ErrMissingSelection) {
		t.Fatalf("err = %v, want ErrMissingSelection", err)
	}
}

func TestSubmitSinkFailureDoesNotFail(t *testing.T) {
	api := &stubAPI{user: &apiclient.User{Name: "Anu"}, createID: "B-1"}
	sink := &recordingSink{err: errors.New("broker down")}
	if _, err := newTestService(api, sink).Submit(context.Background(), "tok", kochiDraft(150000, 3, 100)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusCancelled, true},
		{StatusAccepted, StatusInProgress, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusInProgress, StatusCompleted, true},
		// backwards or skipping
		{StatusAccepted, StatusPending, false},
		{StatusPending, StatusCompleted, false},
		{StatusInProgress, StatusCancelled, false},
		// terminal
		{StatusCompleted, StatusPending, false},
		{StatusCancelled, StatusAccepted, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestUpdateStatus(t *testing.T) {
	api := &stubAPI{bookings: []json.RawMessage{
		json.RawMessage(`{"_id":"b1","status":"pending","driver":{"id":"ravi@example.com"}}`),
		json.RawMessage(`{"bookingId":"b2","status":"completed"}`),
		json.RawMessage(`not json`),
	}}
	sink := &recordingSink{}
	svc := newTestService(api, sink)
	ctx := context.Background()

	if err := svc.UpdateStatus(ctx, "tok", "b1", StatusAccepted); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if api.updated["b1"] != "accepted" {
		t.Errorf("updated = %v", api.updated)
	}
	if len(sink.events) != 1 || sink.events[0].Type != EventStatusChanged || sink.events[0].DriverID != "ravi@example.com" {
		t.Errorf("events = %+v", sink.events)
	}

	if err := svc.UpdateStatus(ctx, "tok", "b2", StatusPending); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
	if err := svc.UpdateStatus(ctx, "tok", "missing", StatusAccepted); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	api := &stubAPI{bookings: []json.RawMessage{
		json.RawMessage(`{"id":"b1","price":{"total":649}}`),
		json.RawMessage(`[1,2]`),
	}}
	got, err := newTestService(api).List(context.Background(), "tok")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].BookingID != "b1" || got[0].Price.Total != 649 || got[0].Status != StatusPending {
		t.Errorf("List = %+v", got)
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := ParseStatus(" In-Progress "); !ok || s != StatusInProgress {
		t.Errorf("ParseStatus = %q, %v", s, ok)
	}
	if _, ok := ParseStatus("archived"); ok {
		t.Error("unknown status accepted")
	}
}
