package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KR_API_BASE_URL", "http://api.local")
	t.Setenv("KR_MAPS_API_KEY", "key")
	t.Setenv("KR_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr = %q, want :8080", cfg.HTTP.Addr)
	}
	if cfg.Booking.Fee != 199 {
		t.Errorf("Booking.Fee = %d, want 199", cfg.Booking.Fee)
	}
	if cfg.Maps.Region.Country != "in" {
		t.Errorf("Region.Country = %q, want in", cfg.Maps.Region.Country)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("Kafka.Brokers = %v, want 2 entries", cfg.Kafka.Brokers)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidateMissingRequired(t *testing.T) {
	var cfg Config
	cfg.Booking.Timezone = "Asia/Kolkata"
	cfg.Maps.Region = RegionConfig{MinLat: 8, MinLng: 74, MaxLat: 12, MaxLng: 77}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing base url and maps key")
	}
}

func TestBookingLocationFallback(t *testing.T) {
	if loc := (BookingConfig{Timezone: "Nowhere/Invalid"}).Location(); loc.String() != "UTC" {
		t.Errorf("Location() = %s, want UTC", loc)
	}
}

func TestValidateRequiresJWTSecretOutsideDevelopment(t *testing.T) {
	base := func(env, secret string) Config {
		var cfg Config
		cfg.Env = env
		cfg.Auth.JWTSecret = secret
		cfg.API.BaseURL = "http://api.local"
		cfg.Maps.APIKey = "key"
		cfg.Booking.Timezone = "Asia/Kolkata"
		cfg.Maps.Region = RegionConfig{MinLat: 8, MinLng: 74, MaxLat: 12, MaxLng: 77}
		return cfg
	}
	cases := []struct {
		env, secret string
		wantErr     bool
	}{
		{"development", "", false},
		{"test", "", false},
		{"production", "", true},
		{"staging", "", true},
		{"production", "s3cret", false},
	}
	for _, tc := range cases {
		err := base(tc.env, tc.secret).Validate()
		if (err != nil) != tc.wantErr {
			t.Errorf("env=%s secret=%q: err = %v, wantErr %v", tc.env, tc.secret, err, tc.wantErr)
		}
		if err != nil && !strings.Contains(err.Error(), "KR_JWT_SECRET") {
			t.Errorf("env=%s: err = %v, want it to name KR_JWT_SECRET", tc.env, err)
		}
	}
}
