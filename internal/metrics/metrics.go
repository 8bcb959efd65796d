package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Poll loop
	PollCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campaign_poll_cycles_total",
			Help: "Total number of poll cycles started",
		},
	)

	PollCycleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_poll_cycle_errors_total",
			Help: "Total number of poll cycles that ended with an error",
		},
		[]string{"stage"}, // "self_test", "fetch"
	)

	CampaignsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campaign_records_fetched_total",
			Help: "Total number of campaign records returned by the API",
		},
	)

	CampaignsDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campaigns_discovered_total",
			Help: "Total number of campaigns recorded as new",
		},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_store_errors_total",
			Help: "Total number of dedupe store failures",
		},
		[]string{"operation"}, // "exists", "insert"
	)

	// Delivery
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_notifications_total",
			Help: "Total number of notification attempts",
		},
		[]string{"result"}, // "sent", "failed"
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_events_published_total",
			Help: "Total number of discovery events handed to the queue",
		},
		[]string{"result"},
	)

	// Gateway
	GatewayState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "discord_gateway_state",
			Help: "Gateway connection state (0 stopped, 1 connecting, 2 connected, 3 backing off)",
		},
	)

	GatewayConnectFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "discord_gateway_connect_failures_total",
			Help: "Total number of failed gateway connection attempts",
		},
	)
)
