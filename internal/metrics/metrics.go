// README: Prometheus collectors shared by the booking flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PlaceLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keralaride_place_lookups_total",
		Help: "Place autocomplete lookups by outcome",
	}, []string{"outcome"})

	RoutingFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keralaride_routing_failures_total",
		Help: "Directions requests that returned a non-OK status",
	}, []string{"status"})

	FareQuotes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keralaride_fare_quotes_total",
		Help: "Fare quotes computed",
	})

	BookingSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keralaride_booking_submissions_total",
		Help: "Booking submissions by outcome",
	}, []string{"outcome"})

	SubmissionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "keralaride_booking_submission_seconds",
		Help:    "Latency of booking submissions against the external API",
		Buckets: prometheus.DefBuckets,
	})

	StaleSuggestions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keralaride_stale_suggestions_total",
		Help: "Autocomplete results discarded because a newer request was issued",
	})

	LLMRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keralaride_llm_retries_total",
		Help: "LLM command parser retries by reason",
	}, []string{"reason"})
)
