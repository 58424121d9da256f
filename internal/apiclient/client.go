// README: Typed client for the external booking REST API (users, drivers, vehicles, bookings).
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("not found")
	ErrMalformedPayload = errors.New("malformed payload")

	// errIncompleteBody marks a 2xx response whose body could not be read in full.
	errIncompleteBody = errors.New("api: incomplete response body")
)

// StatusError is returned for any non-2xx response not covered by a sentinel.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: unexpected status %d: %s", e.Code, e.Body)
}

// maxErrorBody bounds how much of an error response is kept in StatusError.
const maxErrorBody = 512

// Client talks to the external REST API. Every call forwards the caller's
// bearer token unchanged.
type Client struct {
	baseURL  string
	http     *http.Client
	validate *validator.Validate
}

func New(baseURL string, timeout time.Duration) *Client {
	return NewWithHTTPClient(baseURL, &http.Client{Timeout: timeout})
}

func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     hc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// UserDetails fetches the signed-in rider's profile.
func (c *Client) UserDetails(ctx context.Context, token string) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/userDetails", token, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) DriverList(ctx context.Context, token string) ([]Driver, error) {
	var out []Driver
	if err := c.do(ctx, http.MethodGet, "/driverList", token, nil, &out); err != nil {
		return nil, err
	}
	return c.validDrivers(out), nil
}

func (c *Client) Vehicles(ctx context.Context, token string) ([]Vehicle, error) {
	var out []Vehicle
	if err := c.do(ctx, http.MethodGet, "/vehicles", token, nil, &out); err != nil {
		return nil, err
	}
	return c.validVehicles(out), nil
}

func (c *Client) VehiclesByEmail(ctx context.Context, token, email string) ([]Vehicle, error) {
	var out []Vehicle
	path := "/vehicles/by-email?email=" + url.QueryEscape(email)
	if err := c.do(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return c.validVehicles(out), nil
}

// CreateBooking posts a booking record and returns the server-assigned id.
// Once the endpoint answers 2xx the booking exists, so a body that carries
// no recognisable id yields "" rather than an error.
func (c *Client) CreateBooking(ctx context.Context, token string, payload any) (string, error) {
	raw, err := c.send(ctx, http.MethodPost, "/bookings", token, payload)
	if err != nil && !errors.Is(err, errIncompleteBody) {
		return "", err
	}
	id := bookingReference(raw)
	if id == "" {
		logrus.WithField("body", truncate(string(raw), maxErrorBody)).Warn("booking accepted without a usable id")
	}
	return id, nil
}

// BookingDetails returns the bookings visible to the caller as raw records.
func (c *Client) BookingDetails(ctx context.Context, token string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/bookings/bookingDetails", token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateBookingStatus(ctx context.Context, token, bookingID, status string) error {
	path := "/bookings/" + url.PathEscape(bookingID) + "/status"
	return c.do(ctx, http.MethodPut, path, token, map[string]string{"status": status}, nil)
}

// validDrivers drops records that fail boundary validation instead of
// failing the whole listing.
func (c *Client) validDrivers(in []Driver) []Driver {
	out := in[:0]
	for _, d := range in {
		if err := c.validate.Struct(d); err != nil {
			logrus.WithError(err).WithField("driver", d.Email).Warn("dropping malformed driver record")
			continue
		}
		out = append(out, d)
	}
	return out
}

func (c *Client) validVehicles(in []Vehicle) []Vehicle {
	out := in[:0]
	for _, v := range in {
		if err := c.validate.Struct(v); err != nil {
			logrus.WithError(err).WithField("vehicle", v.ID).Warn("dropping malformed vehicle record")
			continue
		}
		out = append(out, v)
	}
	return out
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	raw, err := c.send(ctx, method, path, token, body)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// send performs the request and returns the body of a 2xx response.
func (c *Client) send(ctx context.Context, method, path, token string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("api: marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("api: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(raw), maxErrorBody)}
	}
	if readErr != nil {
		return raw, fmt.Errorf("%w: %v", errIncompleteBody, readErr)
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
